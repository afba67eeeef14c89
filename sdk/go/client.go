// Package planlinesdk is a minimal Planline HTTP API client.
package planlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Planline server.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// WorkItem represents the API work item model.
type WorkItem struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	Title          string  `json:"title"`
	DueDate        *string `json:"due_date,omitempty"`
	EstimatedHours float64 `json:"estimated_hours"`
	LoggedHours    float64 `json:"logged_hours"`
	Pinned         bool    `json:"pinned"`
	PlacementDate  *string `json:"placement_date,omitempty"`
	PlacementStart *string `json:"placement_start,omitempty"`
}

// Commitment represents an immovable calendar event.
type Commitment struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	Title           string `json:"title,omitempty"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}

// MovedItem records one placement change.
type MovedItem struct {
	ItemID   string  `json:"item_id"`
	OldDate  *string `json:"old_date,omitempty"`
	OldStart *string `json:"old_start,omitempty"`
	NewDate  string  `json:"new_date"`
	NewStart string  `json:"new_start"`
}

// PlacementResult is the outcome of an automatic scheduling attempt.
type PlacementResult struct {
	Placed bool        `json:"placed"`
	Date   string      `json:"date,omitempty"`
	Start  string      `json:"start,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Moved  []MovedItem `json:"moved,omitempty"`
}

// MoveOutcome is the terminal state of one drag request.
type MoveOutcome struct {
	Status string `json:"status"`
	Date   string `json:"date,omitempty"`
	Start  string `json:"start,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Slot is one free gap on a day.
type Slot struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type itemEnvelope struct {
	Item      WorkItem         `json:"item"`
	Placement *PlacementResult `json:"placement,omitempty"`
}

type commitmentEnvelope struct {
	Commitment Commitment  `json:"commitment"`
	Moved      []MovedItem `json:"moved"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateItem creates a work item. The returned placement is nil when the item
// had no due date to schedule against.
func (c *Client) CreateItem(ctx context.Context, ownerID, title string, estimatedHours float64, dueDate string) (WorkItem, *PlacementResult, error) {
	body := map[string]any{
		"owner_id":        ownerID,
		"title":           title,
		"estimated_hours": estimatedHours,
	}
	if dueDate != "" {
		body["due_date"] = dueDate
	}
	var resp itemEnvelope
	err := c.do(ctx, http.MethodPost, "v0/items", body, &resp)
	return resp.Item, resp.Placement, err
}

// GetItem fetches a work item by id.
func (c *Client) GetItem(ctx context.Context, itemID string) (WorkItem, error) {
	var resp itemEnvelope
	err := c.do(ctx, http.MethodGet, "v0/items/"+url.PathEscape(itemID), nil, &resp)
	return resp.Item, err
}

// LogEffort adds logged hours to an item.
func (c *Client) LogEffort(ctx context.Context, itemID string, hours float64) (WorkItem, *PlacementResult, error) {
	var resp itemEnvelope
	endpoint := fmt.Sprintf("v0/items/%s/effort", url.PathEscape(itemID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"hours": hours}, &resp)
	return resp.Item, resp.Placement, err
}

// PlaceItem asks the server to derive a placement for the item.
func (c *Client) PlaceItem(ctx context.Context, itemID string) (PlacementResult, error) {
	var resp PlacementResult
	endpoint := fmt.Sprintf("v0/items/%s/place", url.PathEscape(itemID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// MoveItem repositions an item by drag.
func (c *Client) MoveItem(ctx context.Context, itemID, date, start string) (MoveOutcome, error) {
	var resp MoveOutcome
	endpoint := fmt.Sprintf("v0/items/%s/move", url.PathEscape(itemID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"date": date, "start": start}, &resp)
	return resp, err
}

// CreateCommitment creates an immovable commitment and returns the items it
// displaced.
func (c *Client) CreateCommitment(ctx context.Context, ownerID, title, date, start string, durationMinutes int) (Commitment, []MovedItem, error) {
	body := map[string]any{
		"owner_id":         ownerID,
		"title":            title,
		"date":             date,
		"start":            start,
		"duration_minutes": durationMinutes,
	}
	var resp commitmentEnvelope
	err := c.do(ctx, http.MethodPost, "v0/commitments", body, &resp)
	return resp.Commitment, resp.Moved, err
}

// Slots returns the free gaps of at least minMinutes on one owner's day.
func (c *Client) Slots(ctx context.Context, ownerID, date string, minMinutes int) ([]Slot, error) {
	var resp struct {
		Slots []Slot `json:"slots"`
	}
	endpoint := fmt.Sprintf("v0/owners/%s/slots?date=%s&min_minutes=%d",
		url.PathEscape(ownerID), url.QueryEscape(date), minMinutes)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Slots, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
