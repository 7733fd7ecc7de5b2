package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/registry"
)

// Client is a typed HTTP client for the platform API, used by tooling
// and integration tests.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken attaches a session token to subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Page is the decoded list envelope.
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// ListOptions control pagination and ordering of list calls.
type ListOptions struct {
	Page   int
	Limit  int
	Sort   string
	Status string
}

func (o ListOptions) query() string {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Sort != "" {
		v.Set("sort", o.Sort)
	}
	if o.Status != "" {
		v.Set("status", o.Status)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do performs one request and decodes the response into out (when
// non-nil). Error envelopes come back as classified errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyUnavailable, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Code == "" {
			return apperr.New(apperr.KindInternal, "%s %s returned %d", method, path, resp.StatusCode)
		}
		return apperr.New(apperr.Kind(env.Code), "%s", env.Message)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateSession opens a session for the principal and remembers the
// token for subsequent calls.
func (c *Client) CreateSession(ctx context.Context, principalID string) (string, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions",
		map[string]string{"principalId": principalID}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.SessionID
	return resp.SessionID, nil
}

// Health returns the liveness summary.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateInspectionInput mirrors the inspection creation payload.
type CreateInspectionInput struct {
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	ScheduledDate time.Time `json:"scheduledDate"`
	CustomerID    string    `json:"customerId,omitempty"`
	SupplierID    string    `json:"supplierId,omitempty"`
	ComponentID   string    `json:"componentId,omitempty"`
}

// CreateInspection schedules a new inspection.
func (c *Client) CreateInspection(ctx context.Context, in CreateInspectionInput) (*domain.Inspection, error) {
	var out domain.Inspection
	if err := c.do(ctx, http.MethodPost, "/api/inspections", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInspection fetches one inspection.
func (c *Client) GetInspection(ctx context.Context, id string) (*domain.Inspection, error) {
	var out domain.Inspection
	if err := c.do(ctx, http.MethodGet, "/api/inspections/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInspections fetches one page of inspections.
func (c *Client) ListInspections(ctx context.Context, opts ListOptions) (*Page[*domain.Inspection], error) {
	var out Page[*domain.Inspection]
	if err := c.do(ctx, http.MethodGet, "/api/inspections"+opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransitionInspection moves an inspection to a new status.
func (c *Client) TransitionInspection(ctx context.Context, id string, status domain.InspectionStatus) (*domain.Inspection, error) {
	var out domain.Inspection
	err := c.do(ctx, http.MethodPost, "/api/inspections/"+id+"/transition",
		map[string]string{"status": string(status)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCustomer registers a customer.
func (c *Client) CreateCustomer(ctx context.Context, name, email string) (*domain.Customer, error) {
	var out domain.Customer
	err := c.do(ctx, http.MethodPost, "/api/customers",
		map[string]string{"name": name, "email": email}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCustomers fetches one page of customers.
func (c *Client) ListCustomers(ctx context.Context, opts ListOptions) (*Page[*domain.Customer], error) {
	var out Page[*domain.Customer]
	if err := c.do(ctx, http.MethodGet, "/api/customers"+opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateComponent registers a component.
func (c *Client) CreateComponent(ctx context.Context, code, name string) (*domain.Component, error) {
	var out domain.Component
	err := c.do(ctx, http.MethodPost, "/api/components",
		map[string]string{"code": code, "name": name}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSupplier registers a supplier.
func (c *Client) CreateSupplier(ctx context.Context, name, code, email string) (*domain.Supplier, error) {
	var out domain.Supplier
	err := c.do(ctx, http.MethodPost, "/api/suppliers",
		map[string]string{"name": name, "code": code, "email": email}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterModel registers a named model.
func (c *Client) RegisterModel(ctx context.Context, name string, metadata map[string]string) (*registry.Model, error) {
	var out registry.Model
	err := c.do(ctx, http.MethodPost, "/api/models",
		map[string]any{"name": name, "metadata": metadata}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddModelVersion appends a version and returns its number.
func (c *Client) AddModelVersion(ctx context.Context, name, modelID string) (int, error) {
	var out struct {
		Version int `json:"version"`
	}
	err := c.do(ctx, http.MethodPost, "/api/models/"+name+"/versions",
		map[string]string{"modelId": modelID}, &out)
	if err != nil {
		return 0, err
	}
	return out.Version, nil
}

// TransitionModel moves a model version to a stage.
func (c *Client) TransitionModel(ctx context.Context, name string, version int, stage registry.Stage) error {
	return c.do(ctx, http.MethodPut,
		fmt.Sprintf("/api/models/%s/versions/%d/stage", name, version),
		map[string]string{"stage": string(stage)}, nil)
}

// GetProductionModel returns the model's production version.
func (c *Client) GetProductionModel(ctx context.Context, name string) (*registry.Version, error) {
	var out registry.Version
	if err := c.do(ctx, http.MethodGet, "/api/models/"+name+"/production", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Infer runs a single inference on a loaded model.
func (c *Client) Infer(ctx context.Context, name, modelID string, input any) (any, error) {
	var out struct {
		Output any `json:"output"`
	}
	err := c.do(ctx, http.MethodPost,
		"/api/models/"+name+"/runtime/"+modelID+"/infer",
		map[string]any{"input": input}, &out)
	if err != nil {
		return nil, err
	}
	return out.Output, nil
}
