// Package services describes the backend services a plan may call and
// provides the ServiceInvoker implementations that reach them.
package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Operation is one callable operation of a service.
type Operation struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Params      []string `yaml:"params,omitempty"`
}

// Service is a named group of operations. Endpoint is the base URL used by
// HTTPInvoker; services without one must be served by a local handler.
type Service struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Endpoint    string      `yaml:"endpoint,omitempty"`
	Operations  []Operation `yaml:"operations"`
}

// Catalog lists the services available to the planner.
type Catalog struct {
	Services []Service `yaml:"services"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse service catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that names are present and unique.
func (c *Catalog) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("service catalog is empty")
	}
	seen := make(map[string]bool)
	for _, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("service without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate service %q", s.Name)
		}
		seen[s.Name] = true

		ops := make(map[string]bool)
		for _, op := range s.Operations {
			if op.Name == "" {
				return fmt.Errorf("service %q: operation without a name", s.Name)
			}
			if ops[op.Name] {
				return fmt.Errorf("service %q: duplicate operation %q", s.Name, op.Name)
			}
			ops[op.Name] = true
		}
	}
	return nil
}

// Lookup finds a service and one of its operations.
func (c *Catalog) Lookup(service, operation string) (*Service, *Operation, bool) {
	for i := range c.Services {
		s := &c.Services[i]
		if s.Name != service {
			continue
		}
		for j := range s.Operations {
			if s.Operations[j].Name == operation {
				return s, &s.Operations[j], true
			}
		}
		return s, nil, false
	}
	return nil, nil, false
}

// Describe renders the catalog as a bullet list for planner prompts.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, s := range c.Services {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		for _, op := range s.Operations {
			params := "none"
			if len(op.Params) > 0 {
				params = strings.Join(op.Params, ", ")
			}
			fmt.Fprintf(&b, "  - %s.%s(%s): %s\n", s.Name, op.Name, params, op.Description)
		}
	}
	return b.String()
}

// Names returns the sorted service names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Services))
	for _, s := range c.Services {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog([]byte(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("built-in service catalog: %v", err))
	}
	return c
}

const defaultCatalogYAML = `
services:
  - name: inventory
    description: The user's food inventory.
    operations:
      - name: list
        description: List every inventory item with name, quantity and unit.
      - name: find
        description: Find items by ingredient name. Asks which item when several match.
        params: [name]
      - name: add
        description: Add an item.
        params: [name, quantity, unit]
      - name: update
        description: Change the quantity of an item. Asks which item when several match.
        params: [name, quantity]
      - name: delete
        description: Remove an item. Asks which item when several match.
        params: [name]
  - name: recipe
    description: Recipe proposal from available ingredients.
    endpoint: http://localhost:8001/recipe
    operations:
      - name: propose
        description: Propose candidate recipes for one course.
        params: [course, inventory, count, exclude_ingredients, exclude_titles, category]
      - name: generate_menu
        description: Propose a full main, side and soup menu.
        params: [inventory]
  - name: search
    description: Web recipe search.
    endpoint: http://localhost:8001/search
    operations:
      - name: recipes
        description: Find recipe pages for the given titles.
        params: [titles]
`
