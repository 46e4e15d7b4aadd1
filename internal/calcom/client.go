package calcom

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
	bookingLanguage = "en"
)

// Credentials supplies the API key on every call.
type Credentials interface {
	CalAPIKey() string
}

// Observer receives one callback per upstream request.
type Observer interface {
	ObserveGatewayCall(op, outcome string, d time.Duration)
}

// Client is the scheduling gateway. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	baseURL  string
	creds    Credentials
	http     *http.Client
	loc      *time.Location
	now      func() time.Time
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// WithLocation sets the timezone results are converted to.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

// WithClock overrides time.Now, used for the future-start checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRequestsPerMinute paces outbound requests. Zero disables pacing.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient builds a gateway for baseURL (e.g. https://api.cal.com/v1/).
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: defaultTimeout},
		loc:     time.UTC,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the timezone results are normalized to.
func (c *Client) Location() *time.Location {
	return c.loc
}

// do performs exactly one HTTP request. It never retries.
func (c *Client) do(ctx context.Context, op, method, endpoint string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		if c.observer != nil {
			c.observer.ObserveGatewayCall(op, outcome, time.Since(start))
		}
		if err != nil {
			c.logger.Warn("gateway call failed", zap.String("op", op), zap.String("method", method), zap.Error(err))
		} else {
			c.logger.Debug("gateway call", zap.String("op", op), zap.String("method", method), zap.Duration("took", time.Since(start)))
		}
	}()

	key := ""
	if c.creds != nil {
		key = c.creds.CalAPIKey()
	}
	if key == "" {
		return &Error{Kind: KindAuth, Op: op, Message: "CAL_API_KEY is not set"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(op, err)
		}
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return &Error{Kind: KindUpstream, Op: op, Message: "build URL: " + err.Error(), Err: err}
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", key)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "marshal request: " + err.Error(), Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Kind: KindUpstream, Op: op, Message: "create request: " + err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return transportError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(op, resp.StatusCode, respBody)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindUpstream, Op: op, Status: resp.StatusCode, Message: "decode response: " + err.Error(), Err: err}
	}
	return nil
}

// resolveLocation returns the named zone or the client default.
func (c *Client) resolveLocation(op, name string) (*time.Location, error) {
	if name == "" {
		return c.loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalid(op, "timezone", fmt.Sprintf("unknown timezone %q", name))
	}
	return loc, nil
}

func (c *Client) parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.In(c.loc)
}
