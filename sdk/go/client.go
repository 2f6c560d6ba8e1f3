// Package givety is a Go client for the Givety indexer query API.
package givety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

// ErrNotFound is returned when the indexer has no such entity.
var ErrNotFound = errors.New("not found")

// Client provides SDK methods for the indexer read models
type Client struct {
	config Config
	http   *http.Client
}

type Config struct {
	// Endpoint is the indexer base URL, e.g. http://localhost:8080.
	Endpoint   string
	HTTPClient *http.Client
}

// Page selects a window of a list.
type Page struct {
	First int
	Skip  int
}

// EntityRef names an entity written by an update.
type EntityRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Update is one committed event as published on the change feed.
type Update struct {
	EventID     string      `json:"eventId"`
	Event       string      `json:"event"`
	Contract    string      `json:"contract"`
	BlockNumber uint64      `json:"blockNumber"`
	Entities    []EntityRef `json:"entities"`
}

// Status is the indexing progress.
type Status struct {
	Cursor    uint64           `json:"cursor"`
	HasCursor bool             `json:"hasCursor"`
	Global    *entities.Global `json:"global"`
}

// NewClient creates a new indexer client
func NewClient(config Config) *Client {
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	return &Client{config: config, http: hc}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.config.Endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("GET %s: indexer returned status %d: %s", path, resp.StatusCode, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

func pageQuery(p Page) url.Values {
	q := url.Values{}
	if p.First > 0 {
		q.Set("first", strconv.Itoa(p.First))
	}
	if p.Skip > 0 {
		q.Set("skip", strconv.Itoa(p.Skip))
	}
	return q
}

func getOne[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var v T
	if err := c.get(ctx, path, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func getList[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var v []T
	if err := c.get(ctx, path, query, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Health reports whether the indexer answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]string
	if err := c.get(ctx, "/health", nil, &body); err != nil {
		return err
	}
	if body["status"] != "healthy" {
		return fmt.Errorf("indexer unhealthy: %q", body["status"])
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	return getOne[Status](ctx, c, "/api/v1/status")
}

func (c *Client) Global(ctx context.Context) (*entities.Global, error) {
	return getOne[entities.Global](ctx, c, "/api/v1/global")
}

func (c *Client) Redemptions(ctx context.Context, page Page) ([]entities.Redemption, error) {
	return getList[entities.Redemption](ctx, c, "/api/v1/redemptions", pageQuery(page))
}

func (c *Client) Redemption(ctx context.Context, id string) (*entities.Redemption, error) {
	return getOne[entities.Redemption](ctx, c, "/api/v1/redemptions/"+url.PathEscape(id))
}

func (c *Client) Liquidations(ctx context.Context, page Page) ([]entities.Liquidation, error) {
	return getList[entities.Liquidation](ctx, c, "/api/v1/liquidations", pageQuery(page))
}

func (c *Client) Liquidation(ctx context.Context, id string) (*entities.Liquidation, error) {
	return getOne[entities.Liquidation](ctx, c, "/api/v1/liquidations/"+url.PathEscape(id))
}

// Troves lists troves, optionally only those in status.
func (c *Client) Troves(ctx context.Context, status entities.TroveStatus, page Page) ([]entities.Trove, error) {
	q := pageQuery(page)
	if status != "" {
		q.Set("status", string(status))
	}
	return getList[entities.Trove](ctx, c, "/api/v1/troves", q)
}

func (c *Client) Trove(ctx context.Context, owner string) (*entities.Trove, error) {
	return getOne[entities.Trove](ctx, c, "/api/v1/troves/"+url.PathEscape(owner))
}

func (c *Client) TroveChanges(ctx context.Context, owner string, page Page) ([]entities.TroveChange, error) {
	return getList[entities.TroveChange](ctx, c, "/api/v1/troves/"+url.PathEscape(owner)+"/changes", pageQuery(page))
}

func (c *Client) User(ctx context.Context, address string) (*entities.User, error) {
	return getOne[entities.User](ctx, c, "/api/v1/users/"+url.PathEscape(address))
}

func (c *Client) Transaction(ctx context.Context, hash string) (*entities.Transaction, error) {
	return getOne[entities.Transaction](ctx, c, "/api/v1/transactions/"+url.PathEscape(hash))
}

func (c *Client) Stake(ctx context.Context, address string) (*entities.Stake, error) {
	return getOne[entities.Stake](ctx, c, "/api/v1/stakes/"+url.PathEscape(address))
}

func (c *Client) StakeChanges(ctx context.Context, address string, page Page) ([]entities.StakeChange, error) {
	return getList[entities.StakeChange](ctx, c, "/api/v1/stakes/"+url.PathEscape(address)+"/changes", pageQuery(page))
}

func (c *Client) StabilityDeposit(ctx context.Context, address string) (*entities.StabilityDeposit, error) {
	return getOne[entities.StabilityDeposit](ctx, c, "/api/v1/deposits/"+url.PathEscape(address))
}

func (c *Client) StabilityDepositChanges(ctx context.Context, address string, page Page) ([]entities.StabilityDepositChange, error) {
	return getList[entities.StabilityDepositChange](ctx, c, "/api/v1/deposits/"+url.PathEscape(address)+"/changes", pageQuery(page))
}

// Subscribe streams feed updates to fn until ctx is cancelled or the
// connection fails.
func (c *Client) Subscribe(ctx context.Context, fn func(Update)) error {
	wsURL := "ws" + strings.TrimPrefix(c.config.Endpoint, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg struct {
			Type    string  `json:"type"`
			Payload *Update `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read feed: %w", err)
		}
		if msg.Type == "data" && msg.Payload != nil {
			fn(*msg.Payload)
		}
	}
}
