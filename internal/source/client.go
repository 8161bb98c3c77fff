package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Channel field layout of the GG.deals price envelope.
var channelFields = []struct {
	channel    string
	current    string
	historical string
}{
	{"retail", "currentRetail", "historicalRetail"},
	{"keyshops", "currentKeyshops", "historicalKeyshops"},
}

// Options parameterise the GG.deals client.
type Options struct {
	BaseURL   string
	APIKey    string
	Region    string
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
}

// Client fetches prices from the GG.deals API.
type Client struct {
	opts    Options
	client  *retryablehttp.Client
	logger  zerolog.Logger
	baseURL string
}

// NewClient constructs a GG.deals client with bounded retries.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gg.deals/v1/prices/by-steam-app-id"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = timeout
	// A 429 must surface as ErrRateLimited immediately; the next cycle
	// is the retry. Everything else follows the default policy.
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		opts:    opts,
		client:  retryClient,
		logger:  logger.With().Str("component", "price_source").Logger(),
		baseURL: baseURL,
	}
}

// FetchPrices queries current and historical prices for up to
// BatchLimit product keys.
func (c *Client) FetchPrices(ctx context.Context, keys []string) (map[string]PriceRecord, error) {
	if len(keys) == 0 {
		return map[string]PriceRecord{}, nil
	}
	if len(keys) > BatchLimit {
		return nil, fmt.Errorf("source: batch of %d keys exceeds limit of %d", len(keys), BatchLimit)
	}

	params := url.Values{}
	params.Set("key", c.opts.APIKey)
	params.Set("ids", strings.Join(keys, ","))
	if c.opts.Region != "" {
		params.Set("region", c.opts.Region)
	}

	endpoint := c.baseURL + "/?" + params.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn().Int("keys", len(keys)).Msg("rate limited by source")
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json envelope", ErrProtocol)
	}

	envelope := gjson.ParseBytes(body)
	if !envelope.Get("success").Bool() {
		return nil, fmt.Errorf("%w: success=false", ErrProtocol)
	}

	records := make(map[string]PriceRecord)
	envelope.Get("data").ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		records[key.String()] = parseRecord(value)
		return true
	})

	c.logger.Debug().Int("requested", len(keys)).Int("returned", len(records)).Msg("fetched prices")
	return records, nil
}

func parseRecord(value gjson.Result) PriceRecord {
	prices := value.Get("prices")

	rec := PriceRecord{
		Title:      value.Get("title").String(),
		URL:        value.Get("url").String(),
		Currency:   prices.Get("currency").String(),
		Current:    make(map[string]string),
		Historical: make(map[string]string),
	}

	for _, f := range channelFields {
		if v := prices.Get(f.current); v.Exists() && v.Type != gjson.Null {
			rec.Current[f.channel] = v.String()
		}
		if v := prices.Get(f.historical); v.Exists() && v.Type != gjson.Null {
			rec.Historical[f.channel] = v.String()
		}
	}

	return rec
}

var _ Fetcher = (*Client)(nil)
