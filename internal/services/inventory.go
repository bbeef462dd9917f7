package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Item is one inventory entry.
type Item struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Quantity float64   `json:"quantity"`
	Unit     string    `json:"unit,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// Inventory is an in-process inventory service. Operations that match
// several items by name ask which one is meant, unless the request was
// re-run with the proceed-as-is flag, in which case the oldest item is used.
type Inventory struct {
	mu    sync.RWMutex
	items map[string]*Item
	now   func() time.Time
}

// NewInventory creates an inventory holding items.
func NewInventory(items ...Item) *Inventory {
	inv := &Inventory{items: make(map[string]*Item), now: time.Now}
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.New().String()[:8]
		}
		if it.AddedAt.IsZero() {
			it.AddedAt = inv.now()
		}
		inv.items[it.ID] = &it
	}
	return inv
}

// Register installs the inventory operations on r.
func (inv *Inventory) Register(r *Registry) {
	r.Register("inventory", "list", inv.list)
	r.Register("inventory", "find", inv.find)
	r.Register("inventory", "add", inv.add)
	r.Register("inventory", "update", inv.update)
	r.Register("inventory", "delete", inv.delete)
}

// sortedLocked returns items oldest first.
func (inv *Inventory) sortedLocked() []Item {
	out := make([]Item, 0, len(inv.items))
	for _, it := range inv.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

func (inv *Inventory) list(ctx context.Context, params map[string]any) models.Outcome {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return models.Success(itemsValue(inv.sortedLocked()))
}

// matchLocked finds items by exact id or by name substring.
func (inv *Inventory) matchLocked(name string) []Item {
	if it, ok := inv.items[name]; ok {
		return []Item{*it}
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	var out []Item
	for _, it := range inv.sortedLocked() {
		if needle != "" && strings.Contains(strings.ToLower(it.Name), needle) {
			out = append(out, it)
		}
	}
	return out
}

// pick narrows matches to one item or returns the ambiguity to ask.
func (inv *Inventory) pick(ctx context.Context, name, verb string, matches []Item) (Item, *models.Outcome) {
	switch {
	case len(matches) == 0:
		out := models.Failure(fmt.Sprintf("no inventory item matches %q", name))
		return Item{}, &out
	case len(matches) == 1 || executor.ProceedAsIs(ctx):
		return matches[0], nil
	}
	opts := make([]models.Option, len(matches))
	for i, it := range matches {
		opts[i] = models.Option{
			Label: fmt.Sprintf("%s %s%s (added %s)", it.Name, formatQty(it.Quantity), it.Unit, it.AddedAt.Format("2006-01-02")),
			Value: it.ID,
		}
	}
	out := models.NeedsDecision(
		fmt.Sprintf("There are %d items matching %q. Which one should I %s?", len(matches), name, verb),
		opts, itemsValue(matches))
	return Item{}, &out
}

func (inv *Inventory) find(ctx context.Context, params map[string]any) models.Outcome {
	name := stringParam(params, "name")
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	matches := inv.matchLocked(name)
	if len(matches) == 0 {
		return models.Success([]any{})
	}
	return models.Success(itemsValue(matches))
}

func (inv *Inventory) add(ctx context.Context, params map[string]any) models.Outcome {
	name := stringParam(params, "name")
	if name == "" {
		return models.Failure("add requires a name")
	}
	it := &Item{
		ID:       uuid.New().String()[:8],
		Name:     name,
		Quantity: floatParam(params, "quantity", 1),
		Unit:     stringParam(params, "unit"),
		AddedAt:  inv.now(),
	}
	inv.mu.Lock()
	inv.items[it.ID] = it
	inv.mu.Unlock()
	return models.Success(itemValue(*it))
}

func (inv *Inventory) update(ctx context.Context, params map[string]any) models.Outcome {
	name := stringParam(params, "name")
	inv.mu.Lock()
	defer inv.mu.Unlock()
	it, out := inv.pick(ctx, name, "update", inv.matchLocked(name))
	if out != nil {
		return *out
	}
	stored := inv.items[it.ID]
	stored.Quantity = floatParam(params, "quantity", stored.Quantity)
	return models.Success(itemValue(*stored))
}

func (inv *Inventory) delete(ctx context.Context, params map[string]any) models.Outcome {
	name := stringParam(params, "name")
	inv.mu.Lock()
	defer inv.mu.Unlock()
	it, out := inv.pick(ctx, name, "delete", inv.matchLocked(name))
	if out != nil {
		return *out
	}
	delete(inv.items, it.ID)
	return models.Success(itemValue(it))
}

// itemValue renders an item as plain JSON-like data so references can
// descend into it.
func itemValue(it Item) map[string]any {
	return map[string]any{
		"id":       it.ID,
		"name":     it.Name,
		"quantity": it.Quantity,
		"unit":     it.Unit,
		"added_at": it.AddedAt.Format(time.RFC3339),
	}
}

func itemsValue(items []Item) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = itemValue(it)
	}
	return out
}

func stringParam(params map[string]any, name string) string {
	switch v := params[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func floatParam(params map[string]any, name string, def float64) float64 {
	switch v := params[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return def
}

func formatQty(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%d", int64(q))
	}
	return fmt.Sprintf("%g", q)
}
