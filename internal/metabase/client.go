// Package metabase is a read-only client for the Metabase REST API. It lists
// cards (reports), fetches their details and usage metadata, and never issues
// anything but GET requests.
package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/report-context/internal/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the tool to Metabase administrators.
const DefaultUserAgent = "ReportContext/1.0 (READ-ONLY)"

// Source enumerates reports and fetches their details.
type Source interface {
	ListIDs(ctx context.Context) ([]types.ItemID, error)
	FetchDetail(ctx context.Context, id types.ItemID) (*types.WorkItem, error)
}

// Invalidator is implemented by sources that cache card details. The
// processor invalidates items it re-queues after a failure.
type Invalidator interface {
	Invalidate(ctx context.Context, id types.ItemID) error
}

// UsageSource enumerates reports and fetches their usage metadata.
type UsageSource interface {
	ListIDs(ctx context.Context) ([]types.ItemID, error)
	FetchUsage(ctx context.Context, id types.ItemID) (*types.Usage, error)
}

// Options configures the client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		Logger:    slog.Default(),
	}
}

// Client implements Source and UsageSource over HTTP.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a client for the Metabase instance at baseURL.
func NewClient(baseURL, apiKey string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Metabase base URL %q", baseURL)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Metabase API key is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}, nil
}

// Ping checks connectivity and credentials, returning the API user's email.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var user currentUser
	if err := c.getJSON(ctx, "/api/user/current", &user); err != nil {
		return "", err
	}
	return user.Email, nil
}

// ListCards returns every non-archived card.
func (c *Client) ListCards(ctx context.Context) ([]Card, error) {
	var cards []Card
	if err := c.getJSON(ctx, "/api/card", &cards); err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}

	active := cards[:0]
	for _, card := range cards {
		if card.ID == 0 || card.Archived {
			continue
		}
		active = append(active, card)
	}
	return active, nil
}

// ListIDs returns the ids of every non-archived card in ascending order.
func (c *Client) ListIDs(ctx context.Context) ([]types.ItemID, error) {
	cards, err := c.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ItemID, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, types.ItemID(card.ID))
	}
	types.SortIDs(ids)
	return ids, nil
}

// FetchCard returns the full card, including usage fields.
func (c *Client) FetchCard(ctx context.Context, id types.ItemID) (*Card, error) {
	raw, err := c.fetchCardBytes(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeCard(raw)
}

// FetchDetail returns the enrichment payload for a card. It fails with
// ErrNotFound when the card has been deleted or archived.
func (c *Client) FetchDetail(ctx context.Context, id types.ItemID) (*types.WorkItem, error) {
	card, err := c.FetchCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if card.Archived {
		return nil, fmt.Errorf("%w: card %d is archived", ErrNotFound, id)
	}
	return card.WorkItem(), nil
}

// FetchUsage returns the usage metadata for a card.
func (c *Client) FetchUsage(ctx context.Context, id types.ItemID) (*types.Usage, error) {
	card, err := c.FetchCard(ctx, id)
	if err != nil {
		return nil, err
	}
	return card.Usage(c.logger), nil
}

// ListCollections returns collection names keyed by id. The synthetic root
// collection is skipped.
func (c *Client) ListCollections(ctx context.Context) (map[int]string, error) {
	var collections []collection
	if err := c.getJSON(ctx, "/api/collection", &collections); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	names := make(map[int]string, len(collections))
	for _, col := range collections {
		if id, ok := col.collectionID(); ok {
			names[id] = col.Name
		}
	}
	return names, nil
}

func (c *Client) fetchCardBytes(ctx context.Context, id types.ItemID) ([]byte, error) {
	return c.get(ctx, "/api/card/"+strconv.Itoa(int(id)))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// get is the only request path of the client. Metabase is never mutated.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}

	c.logger.Debug("metabase request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(path, resp.StatusCode)
	}
	return body, nil
}

func decodeCard(raw []byte) (*Card, error) {
	var card Card
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("decoding card: %w", err)
	}
	return &card, nil
}
