// Package portal implements the client for the remote master-data API:
// session login, the change-event feed, bean payload fetches, connector
// configuration and binary derivate downloads.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
)

// Client is the remote API surface the engine depends on. One client is
// bound to one server and holds its session for the process lifetime.
type Client interface {
	Login(ctx context.Context) error
	GetEvents(ctx context.Context, connectorName string, sinceEventID int64) ([]RemoteEvent, error)
	GetBeans(ctx context.Context, objectIDs []string, connectorName string) (*BeanResponse, error)
	GetConnectorConfig(ctx context.Context, connectorName string) (*ConnectorConfig, error)
	SaveDerivate(ctx context.Context, objectID string) ([]byte, error)

	// LastResponse returns diagnostics of the most recent call, successful
	// or not. The engine persists them on the affected event.
	LastResponse() ResponseMetadata
}

// APIError is a transport or remote-side failure of one API operation.
// It aborts the current module's sync or the current event's execution
// and is reported as a non-fatal problem; other work continues.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// HTTPClient talks to one remote server over its JSON HTTP API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	sessionID  string
	last       ResponseMetadata
}

// NewHTTPClient creates a client for the given server.
func NewHTTPClient(server *model.Server, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(server.Domain), "/"),
		token:      server.Token,
		httpClient: httpClient,
	}
}

// Login opens a session. Must be called once before any other operation;
// the client pool takes care of that.
func (c *HTTPClient) Login(ctx context.Context) error {
	body := map[string]string{"token": c.token}
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/login", nil, body, &result); err != nil {
		return err
	}
	if result.SessionID == "" {
		return &APIError{Op: "login", Message: "no session id in response"}
	}
	c.sessionID = result.SessionID
	return nil
}

// GetEvents returns one page of the change-event feed for a connector,
// starting after the given event id.
func (c *HTTPClient) GetEvents(ctx context.Context, connectorName string, sinceEventID int64) ([]RemoteEvent, error) {
	q := url.Values{}
	q.Set("connector", connectorName)
	q.Set("since", strconv.FormatInt(sinceEventID, 10))

	var events []RemoteEvent
	if err := c.call(ctx, http.MethodGet, "/api/events", q, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetBeans fetches the object snapshots for the given object ids.
func (c *HTTPClient) GetBeans(ctx context.Context, objectIDs []string, connectorName string) (*BeanResponse, error) {
	body := map[string]any{
		"object_ids": objectIDs,
		"connector":  connectorName,
	}
	var resp BeanResponse
	if err := c.call(ctx, http.MethodPost, "/api/beans", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConnectorConfig fetches the remote connector configuration.
func (c *HTTPClient) GetConnectorConfig(ctx context.Context, connectorName string) (*ConnectorConfig, error) {
	q := url.Values{}
	q.Set("connector", connectorName)

	var cfg ConnectorConfig
	if err := c.call(ctx, http.MethodGet, "/api/config", q, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveDerivate downloads the binary content of a file object.
func (c *HTTPClient) SaveDerivate(ctx context.Context, objectID string) ([]byte, error) {
	target := c.baseURL + "/api/derivate/" + url.PathEscape(objectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &APIError{Op: "derivate", Message: err.Error()}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(target, "", "")
		return nil, &APIError{Op: "derivate", Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.record(target, flattenHeaders(resp.Header), fmt.Sprintf("%d bytes", len(data)))
	if err != nil {
		return nil, &APIError{Op: "derivate", StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Op: "derivate", StatusCode: resp.StatusCode, Message: string(data)}
	}
	return data, nil
}

// LastResponse returns diagnostics of the most recent call.
func (c *HTTPClient) LastResponse() ResponseMetadata {
	return c.last
}

func (c *HTTPClient) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	var reader io.Reader
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Op: path, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &APIError{Op: path, Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(target, "", string(payload))
		return &APIError{Op: path, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.last = ResponseMetadata{
		Headers:  flattenHeaders(resp.Header),
		URL:      target,
		Response: string(data),
		Payload:  string(payload),
	}
	if err != nil {
		return &APIError{Op: path, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: path, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &APIError{Op: path, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.sessionID != "" {
		req.Header.Set("X-Session-Id", c.sessionID)
	} else if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *HTTPClient) record(target, headers, payload string) {
	c.last = ResponseMetadata{Headers: headers, URL: target, Payload: payload}
}

func flattenHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(h[k], ", "))
	}
	return b.String()
}
