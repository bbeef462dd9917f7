package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// callRequest is the body posted to a remote operation.
type callRequest struct {
	Params      map[string]any `json:"params"`
	ProceedAsIs bool           `json:"proceed_as_is,omitempty"`
}

// envelope is the response body of a remote operation.
type envelope struct {
	Status   string          `json:"status"`
	Result   any             `json:"result,omitempty"`
	Question string          `json:"question,omitempty"`
	Options  []models.Option `json:"options,omitempty"`
	Context  any             `json:"context,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// HTTPInvoker calls catalog services over HTTP:
// POST {endpoint}/{operation} with a JSON body of params.
type HTTPInvoker struct {
	mu         sync.RWMutex
	catalog    *Catalog
	httpClient *http.Client
	authToken  string
}

// HTTPOption configures an HTTPInvoker.
type HTTPOption func(*HTTPInvoker)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPInvoker) { h.httpClient = c }
}

// WithAuthToken sends a bearer token with every call.
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTPInvoker) { h.authToken = token }
}

// NewHTTPInvoker creates an invoker over catalog. A zero timeout means 30s.
func NewHTTPInvoker(catalog *Catalog, timeout time.Duration, opts ...HTTPOption) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := &HTTPInvoker{
		catalog:    catalog,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetCatalog swaps the catalog, e.g. after the config file changed.
func (h *HTTPInvoker) SetCatalog(c *Catalog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.catalog = c
}

// Call implements executor.ServiceInvoker. Transport errors and non-2xx
// responses without an envelope are Failures.
func (h *HTTPInvoker) Call(ctx context.Context, service, operation string, params map[string]any) models.Outcome {
	h.mu.RLock()
	catalog := h.catalog
	h.mu.RUnlock()

	svc, _, ok := catalog.Lookup(service, operation)
	if !ok {
		return models.Failure(fmt.Sprintf("unknown operation %s.%s", service, operation))
	}
	if svc.Endpoint == "" {
		return models.Failure(fmt.Sprintf("service %s has no endpoint", service))
	}

	body, err := json.Marshal(callRequest{Params: params, ProceedAsIs: executor.ProceedAsIs(ctx)})
	if err != nil {
		return models.Failure(fmt.Sprintf("marshal params: %v", err))
	}

	url := strings.TrimRight(svc.Endpoint, "/") + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.Failure(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}

	logging.Debugf("[services] POST %s", url)
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return models.Failure(fmt.Sprintf("%s.%s: %v", service, operation, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return models.Failure(fmt.Sprintf("%s.%s: read response: %v", service, operation, err))
	}
	return decodeEnvelope(service, operation, resp.StatusCode, data)
}

func decodeEnvelope(service, operation string, code int, data []byte) models.Outcome {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Status == "" {
		if code < 200 || code >= 300 {
			return models.Failure(fmt.Sprintf("%s.%s: HTTP %d: %s", service, operation, code, truncate(string(data), 200)))
		}
		return models.Failure(fmt.Sprintf("%s.%s: malformed response", service, operation))
	}

	switch env.Status {
	case "success":
		return models.Success(env.Result)
	case "ambiguity":
		if env.Question == "" {
			return models.Failure(fmt.Sprintf("%s.%s: ambiguity without a question", service, operation))
		}
		return models.NeedsDecision(env.Question, env.Options, env.Context)
	case "error":
		detail := env.Error
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", code)
		}
		return models.Failure(fmt.Sprintf("%s.%s: %s", service, operation, detail))
	default:
		return models.Failure(fmt.Sprintf("%s.%s: unknown status %q", service, operation, env.Status))
	}
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
