// Package controlplane implements resource.Client against the REST API of a managed
// data-platform control plane. Namespaces map to workspaces, parameterized queries
// to query lambdas and scheduled automations to scheduled lambdas.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/picklr-io/reportchain/pkg/resource"
)

const (
	basePath       = "/v1/orgs/self"
	defaultTimeout = 30 * time.Second
)

// Collection status values reported by the API.
const (
	StatusReady   = "READY"
	StatusDeleted = "DELETED"
)

// Options configures a Client.
type Options struct {
	Server     string // e.g. https://api.example.com
	APIKey     string
	HTTPClient *http.Client
	Retry      *RetryPolicy
}

// Client is a resource.Client backed by the control-plane API.
type Client struct {
	server     string
	apiKey     string
	httpClient *http.Client
	retry      *RetryPolicy
}

var _ resource.Client = (*Client)(nil)

// New creates a client. Server and APIKey are required.
func New(opts Options) (*Client, error) {
	if opts.Server == "" {
		return nil, fmt.Errorf("controlplane: api server is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("controlplane: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		server:     strings.TrimRight(opts.Server, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		retry:      retry,
	}, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type workspace struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type source struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

type sqlText struct {
	SQL string `json:"sql"`
}

type collection struct {
	Name              string   `json:"name"`
	Workspace         string   `json:"workspace,omitempty"`
	Status            string   `json:"status,omitempty"`
	Sources           []source `json:"sources,omitempty"`
	FieldMappingQuery *sqlText `json:"field_mapping_query,omitempty"`
}

type lambdaParameter struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type lambdaSQL struct {
	Query             string            `json:"query"`
	DefaultParameters []lambdaParameter `json:"default_parameters,omitempty"`
}

type queryLambda struct {
	Name      string    `json:"name"`
	Workspace string    `json:"workspace,omitempty"`
	Version   string    `json:"version,omitempty"`
	SQL       lambdaSQL `json:"sql"`
}

type scheduledLambda struct {
	UUID                string `json:"uuid,omitempty"`
	Workspace           string `json:"workspace,omitempty"`
	APIKey              string `json:"apikey,omitempty"`
	CronString          string `json:"cron_string"`
	QLName              string `json:"ql_name"`
	Version             string `json:"version,omitempty"`
	TotalTimesToExecute *int   `json:"total_times_to_execute,omitempty"`
	WebhookURL          string `json:"webhook_url,omitempty"`
	WebhookAuthHeader   string `json:"webhook_auth_header,omitempty"`
	WebhookPayload      string `json:"webhook_payload,omitempty"`
}

func (c *Client) Create(ctx context.Context, spec resource.Spec) (resource.Handle, error) {
	h := resource.Handle{Kind: spec.Kind, Name: spec.Name, Namespace: spec.Namespace}
	var err error

	switch spec.Kind {
	case resource.KindNamespace:
		h.ID = spec.Name
		h.Namespace = ""
		err = c.call(ctx, http.MethodPost, basePath+"/ws", workspace{Name: spec.Name}, nil)

	case resource.KindCollection:
		if spec.Collection == nil {
			return h, resource.NewError("create", spec.Kind, spec.Name, resource.Validationf("missing collection parameters"))
		}
		req := collection{Name: spec.Name}
		if spec.Collection.SourceURI != "" {
			req.Sources = []source{{URL: spec.Collection.SourceURI, Format: spec.Collection.Format}}
		}
		if spec.Collection.Transformation != "" {
			req.FieldMappingQuery = &sqlText{SQL: spec.Collection.Transformation}
		}
		var out collection
		err = c.call(ctx, http.MethodPost, wsPath(spec.Namespace, "collections"), req, &out)
		h.ID = spec.Namespace + "." + spec.Name
		if out.Status != "" {
			h.Attributes = map[string]string{"status": out.Status}
		}

	case resource.KindParameterizedQuery:
		if spec.Query == nil {
			return h, resource.NewError("create", spec.Kind, spec.Name, resource.Validationf("missing query parameters"))
		}
		req := queryLambda{Name: spec.Name, SQL: lambdaSQL{Query: spec.Query.SQL}}
		for _, p := range spec.Query.Parameters {
			req.SQL.DefaultParameters = append(req.SQL.DefaultParameters, lambdaParameter{Name: p.Name, Type: p.Type, Value: p.Default})
		}
		var out queryLambda
		err = c.call(ctx, http.MethodPost, wsPath(spec.Namespace, "lambdas"), req, &out)
		h.ID = spec.Namespace + "." + spec.Name
		h.Attributes = map[string]string{"version": out.Version}

	case resource.KindScheduledAutomation:
		a := spec.Automation
		if a == nil {
			return h, resource.NewError("create", spec.Kind, spec.Name, resource.Validationf("missing automation parameters"))
		}
		req := scheduledLambda{
			APIKey:     c.apiKey,
			CronString: a.Schedule,
			QLName:     a.QueryName,
			Version:    a.QueryVersion,
		}
		if a.RepeatCount > 0 {
			n := a.RepeatCount
			req.TotalTimesToExecute = &n
		}
		if cb := a.Callback; cb != nil {
			req.WebhookURL = cb.URL
			req.WebhookAuthHeader = cb.AuthToken
			req.WebhookPayload = cb.BodyTemplate
		}
		var out scheduledLambda
		err = c.call(ctx, http.MethodPost, wsPath(spec.Namespace, "scheduled_lambdas"), req, &out)
		if err == nil && out.UUID == "" {
			err = fmt.Errorf("%w: scheduled lambda created without uuid", resource.ErrTransport)
		}
		h.ID = out.UUID

	default:
		return h, resource.NewError("create", spec.Kind, spec.Name, resource.Validationf("unsupported kind %q", spec.Kind))
	}

	if err != nil {
		return resource.Handle{}, resource.NewError("create", spec.Kind, spec.Name, err)
	}
	logging.Debug("controlplane create", "address", h.Address(), "id", h.ID)
	return h, nil
}

func (c *Client) Get(ctx context.Context, h resource.Handle) (resource.Snapshot, error) {
	path, err := resourcePath(h)
	if err != nil {
		return resource.Snapshot{}, resource.NewError("get", h.Kind, h.Name, err)
	}

	snap := resource.Snapshot{Handle: h, State: resource.StateReady}
	if h.Kind == resource.KindCollection {
		var out collection
		if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
			return resource.Snapshot{}, resource.NewError("get", h.Kind, h.Name, err)
		}
		snap.Status = out.Status
		snap.State = collectionState(out.Status)
		return snap, nil
	}

	if err := c.call(ctx, http.MethodGet, path, nil, nil); err != nil {
		return resource.Snapshot{}, resource.NewError("get", h.Kind, h.Name, err)
	}
	return snap, nil
}

func (c *Client) Delete(ctx context.Context, h resource.Handle) error {
	path, err := resourcePath(h)
	if err != nil {
		return resource.NewError("delete", h.Kind, h.Name, err)
	}
	if err := c.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return resource.NewError("delete", h.Kind, h.Name, err)
	}
	return nil
}

// collectionState maps a collection status to a lifecycle state.
func collectionState(status string) resource.State {
	switch status {
	case StatusReady:
		return resource.StateReady
	case StatusDeleted:
		return resource.StateDeletionRequested
	default:
		return resource.StateProvisioning
	}
}

func wsPath(ws string, parts ...string) string {
	p := basePath + "/ws/" + url.PathEscape(ws)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func resourcePath(h resource.Handle) (string, error) {
	switch h.Kind {
	case resource.KindNamespace:
		return wsPath(h.ID), nil
	case resource.KindCollection:
		return wsPath(h.Namespace, "collections", h.Name), nil
	case resource.KindParameterizedQuery:
		return wsPath(h.Namespace, "lambdas", h.Name), nil
	case resource.KindScheduledAutomation:
		if h.ID == "" {
			return "", resource.Validationf("scheduled automation %s has no id", h.Name)
		}
		return wsPath(h.Namespace, "scheduled_lambdas", h.ID), nil
	}
	return "", resource.Validationf("unsupported kind %q", h.Kind)
}

// call sends one request, retrying only throttled responses.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%w: encode request: %v", resource.ErrValidation, err)
		}
	}

	err := retryWithBackoff(ctx, c.retry, func() error {
		return c.do(ctx, method, path, payload, out)
	}, func(err error) bool {
		return errors.Is(err, errThrottled)
	})
	if errors.Is(err, errThrottled) {
		return fmt.Errorf("%w: %w", resource.ErrTransport, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", resource.ErrTransport, err)
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", resource.ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", resource.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: parse response: %w (status %d)", resource.ErrTransport, err, resp.StatusCode)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: parse response data: %w", resource.ErrTransport, err)
	}
	return nil
}

// classify maps an error response to the resource error taxonomy.
func classify(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Message != "" {
		msg = ae.Message
	}

	var kind error
	switch {
	case status == http.StatusNotFound:
		kind = resource.ErrNotFound
	case status == http.StatusConflict:
		kind = resource.ErrAlreadyExists
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		kind = resource.ErrValidation
	case status == http.StatusTooManyRequests:
		kind = errThrottled
	default:
		kind = resource.ErrTransport
	}
	return fmt.Errorf("%w: status %d: %s", kind, status, msg)
}
