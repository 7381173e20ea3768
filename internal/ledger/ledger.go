// Package ledger is the Notion-backed plant database client. It exposes the
// two operations the reconciliation core needs, querying pages due for
// watering and patching page properties, over Notion's JSON HTTP API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
	queryPageSize  = 100
)

// Page is a plant record as read from the Ledger. ID is the opaque,
// globally unique Notion page ID in dashed form.
type Page struct {
	ID            string
	Name          string
	RecommendedML *float64
}

// Properties names the database fields the client reads and writes. All
// names are injected through configuration, never hard-coded.
type Properties struct {
	Name          string
	NextWatering  string
	RecommendedML string
	LastWatered   string
}

// Client talks to the Notion API with bearer-token auth.
type Client struct {
	baseURL    string
	token      string
	databaseID string
	props      Properties
	client     *http.Client
}

// New creates a Client. An empty baseURL selects the public Notion API.
func New(baseURL, token, databaseID string, props Properties) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		databaseID: databaseID,
		props:      props,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// queryResponse is the subset of Notion's database query response we read.
type queryResponse struct {
	Results    []pageResult `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor"`
}

type pageResult struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

type property struct {
	Type    string      `json:"type"`
	Title   []richText  `json:"title"`
	Number  *float64    `json:"number"`
	Formula *formulaVal `json:"formula"`
	Rollup  *rollupVal  `json:"rollup"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type formulaVal struct {
	Type   string   `json:"type"`
	Number *float64 `json:"number"`
}

type rollupVal struct {
	Type   string   `json:"type"`
	Number *float64 `json:"number"`
}

// QueryDue returns every page whose next-watering date is on or before the
// given day, following pagination so a large due-set is never truncated.
func (c *Client) QueryDue(ctx context.Context, onOrBefore time.Time) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		body := map[string]any{
			"filter": map[string]any{
				"property": c.props.NextWatering,
				"date": map[string]any{
					"on_or_before": onOrBefore.Format("2006-01-02"),
				},
			},
			"page_size": queryPageSize,
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp queryResponse
		path := fmt.Sprintf("/databases/%s/query", c.databaseID)
		if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
			return nil, fmt.Errorf("querying due pages: %w", err)
		}

		for _, r := range resp.Results {
			pages = append(pages, Page{
				ID:            r.ID,
				Name:          pageName(r.Properties, c.props.Name),
				RecommendedML: pageNumber(r.Properties, c.props.RecommendedML),
			})
		}

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return pages, nil
}

// SetLastWatered patches a page's last-watered property to the given
// calendar date (YYYY-MM-DD). Writing the same date twice is a no-op change
// on the Notion side, which is what makes reverse-sync retries safe.
func (c *Client) SetLastWatered(ctx context.Context, pageID, date string) error {
	props := map[string]any{
		c.props.LastWatered: DateValue(date),
	}
	if err := c.PatchPage(ctx, pageID, props); err != nil {
		return fmt.Errorf("setting last watered for page %s: %w", pageID, err)
	}
	return nil
}

// PatchPage overwrites the named properties of a page.
func (c *Client) PatchPage(ctx context.Context, pageID string, properties map[string]any) error {
	body := map[string]any{"properties": properties}
	return c.doJSON(ctx, http.MethodPatch, "/pages/"+pageID, body, nil)
}

// NumberValue builds a number property value for PatchPage.
func NumberValue(v float64) map[string]any {
	return map[string]any{"number": v}
}

// DateValue builds a date property value for PatchPage. start is either a
// YYYY-MM-DD date or a full ISO timestamp.
func DateValue(start string) map[string]any {
	return map[string]any{"date": map[string]any{"start": start}}
}

// doJSON sends an authenticated JSON request and decodes the response into
// out when out is non-nil. Non-2xx statuses are returned as errors carrying
// the status and a body excerpt.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// pageName extracts the page title, preferring the configured name property
// and falling back to the first title-typed property.
func pageName(props map[string]property, nameProp string) string {
	if p, ok := props[nameProp]; ok && p.Type == "title" {
		if name := joinTitle(p.Title); name != "" {
			return name
		}
	}
	for _, p := range props {
		if p.Type == "title" {
			if name := joinTitle(p.Title); name != "" {
				return name
			}
		}
	}
	return "Untitled Plant"
}

func joinTitle(parts []richText) string {
	var b strings.Builder
	for _, t := range parts {
		b.WriteString(t.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// pageNumber reads a numeric property, accepting plain number, formula, and
// rollup shapes. Absent or non-numeric properties yield nil.
func pageNumber(props map[string]property, name string) *float64 {
	p, ok := props[name]
	if !ok {
		return nil
	}
	switch p.Type {
	case "number":
		return p.Number
	case "formula":
		if p.Formula != nil && p.Formula.Type == "number" {
			return p.Formula.Number
		}
	case "rollup":
		if p.Rollup != nil && p.Rollup.Type == "number" {
			return p.Rollup.Number
		}
	}
	return nil
}
