package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/store"
)

const (
	baseURL       = "https://api.notion.com/v1"
	notionVersion = "2022-06-28"

	// DefaultRateLimit is Notion's documented average request rate
	DefaultRateLimit = 3.0
)

// Client is a Notion API client
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOptions tunes a Client. Zero values use defaults.
type ClientOptions struct {
	BaseURL   string
	RateLimit float64 // requests per second, <0 disables
	Timeout   time.Duration
}

// NewClient creates a client for the given integration token
func NewClient(token string, opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}

	c := &Client{
		token:   token,
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// NewClientWithToken creates a client with default options
func NewClientWithToken(token string) *Client {
	return NewClient(token, ClientOptions{})
}

// request makes an authenticated request to the Notion API
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	logging.Debug("notion", "%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = logging.Truncate(string(respBody), 200)
		}
		return nil, apiErr
	}

	return respBody, nil
}

// ErrorResponse is a Notion API error body
type ErrorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response. It matches the store error classes
// with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion API error (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion API error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case store.ErrNotFound:
		return e.Status == http.StatusNotFound || e.Code == "object_not_found"
	case store.ErrTransient:
		switch e.Code {
		case "rate_limited", "conflict_error", "internal_server_error", "service_unavailable", "database_connection_unavailable", "gateway_timeout":
			return true
		}
		return e.Status == http.StatusTooManyRequests || e.Status == http.StatusConflict || e.Status >= 500
	case store.ErrValidation:
		return e.Status == http.StatusBadRequest || e.Code == "validation_error"
	}
	return false
}

// Object is a Notion page
type Object struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	CreatedTime    string              `json:"created_time"`
	LastEditedTime string              `json:"last_edited_time"`
	Properties     map[string]Property `json:"properties,omitempty"`
	URL            string              `json:"url,omitempty"`
	Parent         Parent              `json:"parent,omitempty"`
}

// RichText is a Notion rich text object
type RichText struct {
	Type      string   `json:"type"`
	PlainText string   `json:"plain_text"`
	Text      *TextObj `json:"text,omitempty"`
}

type TextObj struct {
	Content string `json:"content"`
}

// Parent describes the parent of an object
type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
}

// Property is a page property value as returned by the API
type Property struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Title    []RichText    `json:"title,omitempty"`
	RichText []RichText    `json:"rich_text,omitempty"`
	Number   *float64      `json:"number,omitempty"`
	Select   *SelectOption `json:"select,omitempty"`
	Status   *SelectOption `json:"status,omitempty"`
	Date     *DateProperty `json:"date,omitempty"`
	Relation []RelationRef `json:"relation,omitempty"`
	Checkbox bool          `json:"checkbox,omitempty"`
	URL      string        `json:"url,omitempty"`
}

type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type DateProperty struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type RelationRef struct {
	ID string `json:"id"`
}

// QueryParams for querying a database
type QueryParams struct {
	Filter      any    `json:"filter,omitempty"`
	Sorts       []Sort `json:"sorts,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

type Sort struct {
	Property  string `json:"property,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // "created_time" or "last_edited_time"
	Direction string `json:"direction"`           // "ascending" or "descending"
}

// QueryResult is the response from querying a database
type QueryResult struct {
	Object     string   `json:"object"`
	Results    []Object `json:"results"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// QueryDatabase fetches one page of a database query
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, params QueryParams) (*QueryResult, error) {
	if params.PageSize == 0 {
		params.PageSize = 100
	}

	data, err := c.request(ctx, "POST", "/databases/"+databaseID+"/query", params)
	if err != nil {
		return nil, err
	}

	var result QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal query result: %w", err)
	}

	return &result, nil
}

// GetPage retrieves a page by ID
func (c *Client) GetPage(ctx context.Context, pageID string) (*Object, error) {
	data, err := c.request(ctx, "GET", "/pages/"+pageID, nil)
	if err != nil {
		return nil, err
	}

	var page Object
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}

	return &page, nil
}

// CreatePage creates a page in a database. properties is in the API's
// write format (see encodeValue).
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any) (*Object, error) {
	body := map[string]any{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": properties,
	}
	data, err := c.request(ctx, "POST", "/pages", body)
	if err != nil {
		return nil, err
	}

	var page Object
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}
	return &page, nil
}

// UpdatePage overwrites the given properties of a page
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]any) (*Object, error) {
	data, err := c.request(ctx, "PATCH", "/pages/"+pageID, map[string]any{"properties": properties})
	if err != nil {
		return nil, err
	}

	var page Object
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}
	return &page, nil
}

// Database is a Notion database with schema
type Database struct {
	Object     string                    `json:"object"`
	ID         string                    `json:"id"`
	Title      []RichText                `json:"title"`
	Properties map[string]PropertySchema `json:"properties"`
	URL        string                    `json:"url"`
}

// PropertySchema describes a database property
type PropertySchema struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// GetDatabase retrieves a database schema by ID
func (c *Client) GetDatabase(ctx context.Context, databaseID string) (*Database, error) {
	data, err := c.request(ctx, "GET", "/databases/"+databaseID, nil)
	if err != nil {
		return nil, err
	}

	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("unmarshal database: %w", err)
	}

	return &db, nil
}

// GetTitle returns the plain text title of a database
func (d *Database) GetTitle() string {
	var title string
	for _, rt := range d.Title {
		title += rt.PlainText
	}
	return title
}
