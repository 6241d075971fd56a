// Package sheets stores clients and invoices in Google Sheets tabs.
//
// Every tab carries a header row; columns are located by header text
// (case-insensitive), so column order in the spreadsheet does not matter.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/carebill/pkg/cache"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Values is the subset of the Sheets values API the stores use.
type Values interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

// Client implements Values over the Google Sheets v4 API.
type Client struct {
	svc *sheetsapi.Service
}

// NewClient creates a Sheets client. credentialsFile is a service-account JSON
// key; when empty, application default credentials are used.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Get reads formatted cell values.
func (c *Client) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Append adds rows after the last row of the table in rng.
func (c *Client) Append(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// Update overwrites the cells in rng.
func (c *Client) Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

// DefaultHeaderTTL bounds how long a tab's header row is trusted.
const DefaultHeaderTTL = 10 * time.Minute

// Book is one spreadsheet. Header rows are cached per tab.
type Book struct {
	values        Values
	spreadsheetID string
	headers       cache.Cache[string, []string]
	headerTTL     time.Duration
}

// NewBook creates a Book. A nil headers cache disables caching.
func NewBook(values Values, spreadsheetID string, headers cache.Cache[string, []string], headerTTL time.Duration) *Book {
	if headers == nil {
		headers = cache.NoopCache[string, []string]{}
	}
	if headerTTL <= 0 {
		headerTTL = DefaultHeaderTTL
	}
	return &Book{values: values, spreadsheetID: spreadsheetID, headers: headers, headerTTL: headerTTL}
}

// table reads a whole tab and refreshes its cached header.
func (b *Book) table(ctx context.Context, tab string) (header []string, rows [][]any, err error) {
	all, err := b.values.Get(ctx, b.spreadsheetID, quoteTab(tab))
	if err != nil {
		return nil, nil, fmt.Errorf("read tab %s: %w", tab, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("tab %s has no header row", tab)
	}
	header = cellStrings(all[0])
	b.headers.Set(tab, header, b.headerTTL)
	return header, all[1:], nil
}

// header returns the tab's header row, reading it when not cached.
func (b *Book) header(ctx context.Context, tab string) ([]string, error) {
	if h, ok := b.headers.Get(tab); ok {
		return h, nil
	}
	rows, err := b.values.Get(ctx, b.spreadsheetID, quoteTab(tab)+"!1:1")
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", tab, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("tab %s has no header row", tab)
	}
	h := cellStrings(rows[0])
	b.headers.Set(tab, h, b.headerTTL)
	return h, nil
}

func (b *Book) append(ctx context.Context, tab string, row []any) error {
	if err := b.values.Append(ctx, b.spreadsheetID, quoteTab(tab), [][]any{row}); err != nil {
		return fmt.Errorf("append to %s: %w", tab, err)
	}
	return nil
}

func (b *Book) updateCell(ctx context.Context, tab string, col, row int, value any) error {
	rng := fmt.Sprintf("%s!%s%d", quoteTab(tab), columnLetter(col), row)
	if err := b.values.Update(ctx, b.spreadsheetID, rng, [][]any{{value}}); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// columnLetter converts a zero-based column index to A1 notation (0 -> A, 26 -> AA).
func columnLetter(i int) string {
	s := ""
	for i++; i > 0; i = (i - 1) / 26 {
		s = string(rune('A'+(i-1)%26)) + s
	}
	return s
}

func cellStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = cellString(v)
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// columns maps lowercased header text to its index.
type columns map[string]int

func indexHeader(header []string) columns {
	idx := make(columns, len(header))
	for i, h := range header {
		k := strings.ToLower(strings.TrimSpace(h))
		if _, seen := idx[k]; !seen && k != "" {
			idx[k] = i
		}
	}
	return idx
}

func (c columns) find(name string) (int, bool) {
	i, ok := c[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// cell returns the value in the named column, nil when absent.
func (c columns) cell(row []any, name string) any {
	i, ok := c.find(name)
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

func (c columns) text(row []any, name string) string {
	return cellString(c.cell(row, name))
}
