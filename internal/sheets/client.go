package sheets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"asset-tracker-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnauthorized is returned whenever the backing API rejects the access
// token. Callers should drop the token rather than retry.
var ErrUnauthorized = errors.New("UNAUTHORIZED")

// Remote table names. The history table name is configurable.
const (
	PortfolioTable = "Portfolio"
	ExchangeTable  = "ExchangeConfigs"
)

const (
	// StoreIDKey is the settings key under which the resolved document id is cached.
	StoreIDKey      = "google_spreadsheet_id"
	spreadsheetMime = "application/vnd.google-apps.spreadsheet"
	maxRetries      = 3
)

// KV persists small values between runs.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Client talks to the spreadsheet and drive REST APIs. Every method takes the
// OAuth access token explicitly; the client never stores it.
type Client struct {
	client       *resty.Client
	sheetsURL    string
	driveURL     string
	documentName string
	historyTable string
	kv           KV
	limiter      *rate.Limiter
	logger       *zap.Logger
	retryWait    time.Duration
}

// NewClient creates a spreadsheet store client.
func NewClient(cfg *config.Sheets, kv KV, logger *zap.Logger) *Client {
	return &Client{
		client:       resty.New().SetHeader("Accept", "application/json"),
		sheetsURL:    strings.TrimRight(cfg.SheetsBaseURL, "/"),
		driveURL:     strings.TrimRight(cfg.DriveBaseURL, "/"),
		documentName: cfg.DocumentName,
		historyTable: cfg.HistoryTable,
		kv:           kv,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		logger:       logger.Named("sheets"),
		retryWait:    time.Second,
	}
}

// Tables returns the managed table names in write order.
func (c *Client) Tables() []string {
	return []string{PortfolioTable, ExchangeTable, c.historyTable}
}

// HistoryTable returns the configured name of the history table.
func (c *Client) HistoryTable() string {
	return c.historyTable
}

// doRequest executes req with rate limiting. Rate-limit answers, server
// errors and transport failures are retried with exponential backoff; a 401
// maps to ErrUnauthorized.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusUnauthorized:
				return nil, ErrUnauthorized
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = true
			}
			err = &StatusError{Code: statusCode, Body: resp.String()}
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			shouldRetry = true
		}

		if !shouldRetry {
			return resp, err
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryWait
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

func (c *Client) newRequest(token string) *resty.Request {
	return c.client.R().SetAuthToken(token)
}

// StatusError is a non-2xx answer that was not retried or kept failing.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, body)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
	Trashed      bool   `json:"trashed"`
}

// ResolveStore returns the id of the backup document: the cached id if it
// still exists, else the most recently modified document with the expected
// name, else a newly created document holding every managed table.
func (c *Client) ResolveStore(ctx context.Context, token string) (string, error) {
	cached, ok, err := c.kv.GetSetting(ctx, StoreIDKey)
	if err != nil {
		return "", err
	}
	if ok && cached != "" {
		valid, err := c.verify(ctx, token, cached)
		if err != nil {
			return "", err
		}
		if valid {
			return cached, nil
		}
		c.logger.Info("Cached spreadsheet no longer available", zap.String("id", cached))
		if err := c.kv.DeleteSetting(ctx, StoreIDKey); err != nil {
			return "", err
		}
	}

	id, err := c.search(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to search drive: %w", err)
	}

	if id == "" {
		if id, err = c.create(ctx, token); err != nil {
			return "", err
		}
		c.logger.Info("Created spreadsheet", zap.String("id", id))
	}

	if err := c.kv.PutSetting(ctx, StoreIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) verify(ctx context.Context, token, id string) (bool, error) {
	var file driveFile
	req := c.newRequest(token).
		SetQueryParam("fields", "id,trashed").
		SetResult(&file)

	_, err := c.doRequest(ctx, http.MethodGet, c.driveURL+"/files/"+url.PathEscape(id), req)
	switch {
	case isStatus(err, http.StatusNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to verify spreadsheet %s: %w", id, err)
	}
	return !file.Trashed, nil
}

func (c *Client) search(ctx context.Context, token string) (string, error) {
	var result struct {
		Files []driveFile `json:"files"`
	}
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(c.documentName, "'", `\'`), spreadsheetMime)
	req := c.newRequest(token).
		SetQueryParam("q", q).
		SetQueryParam("fields", "files(id,name,modifiedTime)").
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, c.driveURL+"/files", req); err != nil {
		return "", err
	}
	if len(result.Files) == 0 {
		return "", nil
	}

	sort.SliceStable(result.Files, func(i, j int) bool {
		return modified(result.Files[i]).After(modified(result.Files[j]))
	})
	if len(result.Files) > 1 {
		c.logger.Info("Found several spreadsheets, using most recent",
			zap.Int("count", len(result.Files)),
			zap.String("id", result.Files[0].ID),
		)
	}
	return result.Files[0].ID, nil
}

func modified(f driveFile) time.Time {
	t, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return t
}

func (c *Client) create(ctx context.Context, token string) (string, error) {
	type props struct {
		Title string `json:"title"`
	}
	type sheet struct {
		Properties props `json:"properties"`
	}
	body := struct {
		Properties props   `json:"properties"`
		Sheets     []sheet `json:"sheets"`
	}{Properties: props{Title: c.documentName}}
	for _, t := range c.Tables() {
		body.Sheets = append(body.Sheets, sheet{Properties: props{Title: t}})
	}

	var result struct {
		SpreadsheetID string `json:"spreadsheetId"`
	}
	req := c.newRequest(token).SetBody(body).SetResult(&result)
	if _, err := c.doRequest(ctx, http.MethodPost, c.sheetsURL+"/spreadsheets", req); err != nil {
		return "", fmt.Errorf("failed to create spreadsheet: %w", err)
	}
	if result.SpreadsheetID == "" {
		return "", errors.New("failed to create spreadsheet: empty id")
	}
	return result.SpreadsheetID, nil
}

// sheetTitles lists the tables present in the document.
func (c *Client) sheetTitles(ctx context.Context, token, storeID string) (map[string]bool, error) {
	var result struct {
		Sheets []struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	req := c.newRequest(token).
		SetQueryParam("fields", "sheets.properties.title").
		SetResult(&result)
	if _, err := c.doRequest(ctx, http.MethodGet, c.spreadsheetURL(storeID), req); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	titles := make(map[string]bool, len(result.Sheets))
	for _, s := range result.Sheets {
		titles[s.Properties.Title] = true
	}
	return titles, nil
}

// ReadTable returns the raw rows of table. A table that does not exist yet
// yields no rows and no error.
func (c *Client) ReadTable(ctx context.Context, token, storeID, table string) ([][]string, error) {
	titles, err := c.sheetTitles(ctx, token, storeID)
	if err != nil {
		return nil, err
	}
	if !titles[table] {
		return nil, nil
	}

	var result struct {
		Values [][]interface{} `json:"values"`
	}
	req := c.newRequest(token).SetResult(&result)
	if _, err := c.doRequest(ctx, http.MethodGet, c.valuesURL(storeID, table+"!A:Z"), req); err != nil {
		if isStatus(err, http.StatusBadRequest) {
			// Sheet removed between the listing and the read.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	rows := make([][]string, 0, len(result.Values))
	for _, r := range result.Values {
		row := make([]string, len(r))
		for i, cell := range r {
			if cell != nil {
				row[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteTable replaces the whole content of table with rows, header first.
// The table is created when missing.
func (c *Client) WriteTable(ctx context.Context, token, storeID, table string, rows [][]string) error {
	titles, err := c.sheetTitles(ctx, token, storeID)
	if err != nil {
		return err
	}
	if !titles[table] {
		if err := c.addSheet(ctx, token, storeID, table); err != nil {
			return err
		}
	} else if err := c.clearRanges(ctx, token, storeID, []string{table}); err != nil {
		return err
	}

	body := struct {
		Range          string     `json:"range"`
		MajorDimension string     `json:"majorDimension"`
		Values         [][]string `json:"values"`
	}{Range: table + "!A1", MajorDimension: "ROWS", Values: rows}

	req := c.newRequest(token).
		SetQueryParam("valueInputOption", "RAW").
		SetBody(body)
	if _, err := c.doRequest(ctx, http.MethodPut, c.valuesURL(storeID, table+"!A1"), req); err != nil {
		return fmt.Errorf("failed to write %s: %w", table, err)
	}

	c.logger.Debug("Wrote table", zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}

// ClearAllTables empties every managed table that exists in the document.
func (c *Client) ClearAllTables(ctx context.Context, token, storeID string) error {
	titles, err := c.sheetTitles(ctx, token, storeID)
	if err != nil {
		return err
	}

	var present []string
	for _, t := range c.Tables() {
		if titles[t] {
			present = append(present, t)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return c.clearRanges(ctx, token, storeID, present)
}

func (c *Client) clearRanges(ctx context.Context, token, storeID string, tables []string) error {
	ranges := make([]string, len(tables))
	for i, t := range tables {
		ranges[i] = t + "!A:Z"
	}
	req := c.newRequest(token).SetBody(map[string][]string{"ranges": ranges})
	if _, err := c.doRequest(ctx, http.MethodPost, c.spreadsheetURL(storeID)+"/values:batchClear", req); err != nil {
		return fmt.Errorf("failed to clear %s: %w", strings.Join(tables, ", "), err)
	}
	return nil
}

func (c *Client) addSheet(ctx context.Context, token, storeID, table string) error {
	body := map[string]interface{}{
		"requests": []interface{}{
			map[string]interface{}{
				"addSheet": map[string]interface{}{
					"properties": map[string]string{"title": table},
				},
			},
		},
	}
	req := c.newRequest(token).SetBody(body)
	if _, err := c.doRequest(ctx, http.MethodPost, c.spreadsheetURL(storeID)+":batchUpdate", req); err != nil {
		return fmt.Errorf("failed to add table %s: %w", table, err)
	}
	return nil
}

func (c *Client) spreadsheetURL(storeID string) string {
	return c.sheetsURL + "/spreadsheets/" + url.PathEscape(storeID)
}

func (c *Client) valuesURL(storeID, rng string) string {
	return c.spreadsheetURL(storeID) + "/values/" + url.PathEscape(rng)
}
