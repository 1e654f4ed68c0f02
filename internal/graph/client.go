// Package graph is a thin client for the Microsoft Graph drive and workbook
// endpoints FairForm needs. Every call takes the bearer token explicitly and
// runs under the client's per-call timeout.
package graph

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

	"golang.org/x/time/rate"

	"github.com/GBSLIT/FairForm/internal/config"
)

const (
	conflictBehavior = "@microsoft.graph.conflictBehavior"
	jsonContentType  = "application/json"
)

// ErrTimeout is wrapped when a call exceeds the per-call timeout.
var ErrTimeout = errors.New("graph call timed out")

// APIError is a non-2xx Graph response. Body keeps the raw structured payload
// so callers can forward it untouched.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph: status %d", e.Status)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DriveItem is the subset of a drive item FairForm reads back.
type DriveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// Column is one workbook table column.
type Column struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// RangeInfo is the subset of a workbook range FairForm reads back.
type RangeInfo struct {
	Address     string `json:"address"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
}

// Client talks to one drive and one workbook table.
type Client struct {
	http     *http.Client
	baseURL  string
	driveID  string
	itemID   string
	parentID string
	table    string
	timeout  time.Duration
}

// New builds a Client from the configuration. A positive GraphRPS throttles
// every outbound request through a token bucket.
func New(cfg *config.Config) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.GraphRPS > 0 {
		burst := int(cfg.GraphRPS)
		if burst < 1 {
			burst = 1
		}
		transport = &rateLimitedTransport{base: transport, limiter: rate.NewLimiter(rate.Limit(cfg.GraphRPS), burst)}
	}
	return &Client{
		http:     &http.Client{Transport: transport},
		baseURL:  cfg.GraphBaseURL,
		driveID:  cfg.DriveID,
		itemID:   cfg.WorkbookItemID,
		parentID: cfg.ParentFolderID,
		table:    cfg.TableName,
		timeout:  cfg.GraphTimeout,
	}
}

// rateLimitedTransport waits for the limiter before each request.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// CreateFolder creates name under the configured parent folder (or the drive
// root). Graph renames the folder instead of failing when the name is taken.
func (c *Client) CreateFolder(ctx context.Context, token, name string) (*DriveItem, error) {
	parent := "root"
	if c.parentID != "" {
		parent = "items/" + url.PathEscape(c.parentID)
	}
	payload := map[string]any{
		"name":           name,
		"folder":         map[string]any{},
		conflictBehavior: "rename",
	}
	var item DriveItem
	if err := c.doJSON(ctx, token, http.MethodPost, c.drivePath()+"/"+parent+"/children", payload, &item); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	return &item, nil
}

// UploadFile PUTs data as <folder>/<filename>. filename must already be
// sanitized. When the folder already holds that name the drive picks a free
// one ("image 1.jpg"); the returned item carries the name actually stored.
func (c *Client) UploadFile(ctx context.Context, token, folderID, filename, contentType string, data []byte) (*DriveItem, error) {
	path := fmt.Sprintf("%s/items/%s:/%s:/content?%s=rename", c.drivePath(), url.PathEscape(folderID), url.PathEscape(filename), conflictBehavior)
	var item DriveItem
	if err := c.do(ctx, token, http.MethodPut, path, contentType, bytes.NewReader(data), &item); err != nil {
		return nil, fmt.Errorf("upload %q: %w", filename, err)
	}
	return &item, nil
}

// ListColumns returns the table's column names in workbook order.
func (c *Client) ListColumns(ctx context.Context, token string) ([]string, error) {
	var out struct {
		Value []Column `json:"value"`
	}
	if err := c.doJSON(ctx, token, http.MethodGet, c.tablePath()+"/columns", nil, &out); err != nil {
		return nil, fmt.Errorf("list columns of %q: %w", c.table, err)
	}
	names := make([]string, len(out.Value))
	for i, col := range out.Value {
		names[i] = col.Name
	}
	return names, nil
}

// AddRow appends one row and returns its 0-based index within the table body.
func (c *Client) AddRow(ctx context.Context, token string, row []any) (int, error) {
	payload := map[string]any{"values": [][]any{row}}
	var out struct {
		Index *int `json:"index"`
	}
	if err := c.doJSON(ctx, token, http.MethodPost, c.tablePath()+"/rows/add", payload, &out); err != nil {
		return -1, fmt.Errorf("add row to %q: %w", c.table, err)
	}
	if out.Index == nil {
		return -1, nil
	}
	return *out.Index, nil
}

// TableBodyRange returns the table's data body range, header excluded.
func (c *Client) TableBodyRange(ctx context.Context, token string) (*RangeInfo, error) {
	var out RangeInfo
	if err := c.doJSON(ctx, token, http.MethodGet, c.tablePath()+"/dataBodyRange", nil, &out); err != nil {
		return nil, fmt.Errorf("table body range: %w", err)
	}
	return &out, nil
}

// ColumnBodyRange returns the data body range of a single named column.
func (c *Client) ColumnBodyRange(ctx context.Context, token, column string) (*RangeInfo, error) {
	path := fmt.Sprintf("%s/columns/%s/dataBodyRange", c.tablePath(), url.PathEscape(column))
	var out RangeInfo
	if err := c.doJSON(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("column %q body range: %w", column, err)
	}
	return &out, nil
}

// PatchFormulas writes a column of formulas to address on sheet. When local
// is set the payload uses formulasLocal, which Excel parses with the
// workbook's regional separators.
func (c *Client) PatchFormulas(ctx context.Context, token, sheet, address string, formulas []string, local bool) error {
	cells := make([][]string, len(formulas))
	for i, f := range formulas {
		cells[i] = []string{f}
	}
	key := "formulas"
	if local {
		key = "formulasLocal"
	}
	path := fmt.Sprintf("%s/workbook/worksheets/%s/range(address='%s')",
		c.itemPath(), url.PathEscape(sheet), url.PathEscape(address))
	if err := c.doJSON(ctx, token, http.MethodPatch, path, map[string]any{key: cells}, nil); err != nil {
		return fmt.Errorf("patch %s!%s: %w", sheet, address, err)
	}
	return nil
}

func (c *Client) drivePath() string {
	return "/drives/" + url.PathEscape(c.driveID)
}

func (c *Client) itemPath() string {
	return c.drivePath() + "/items/" + url.PathEscape(c.itemID)
}

func (c *Client) tablePath() string {
	return c.itemPath() + "/workbook/tables/" + url.PathEscape(c.table)
}

func (c *Client) doJSON(ctx context.Context, token, method, path string, payload, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = jsonContentType
	}
	return c.do(ctx, token, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, token, method, path, contentType string, body io.Reader, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", jsonContentType)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err)
		}
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err)
		}
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if json.Valid(body) {
		apiErr.Body = json.RawMessage(body)
	} else if msg := strings.TrimSpace(string(body)); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}
