// internal/github/client.go
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperrors "github-stats-harvester/internal/errors"
	"github-stats-harvester/internal/ratelimit"
)

const (
	// DefaultGraphQLURL is the public GitHub GraphQL endpoint.
	DefaultGraphQLURL = "https://api.github.com/graphql"

	maxAttempts           = 5
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	requestTimeout        = 60 * time.Second
	maxBodyBytes          = 10 << 20
)

// Payload is the "data" member of a GraphQL response, keyed by top-level field,
// with the rateLimit field already removed.
type Payload map[string]json.RawMessage

// Client is the single gateway to the GitHub API. Every GraphQL call waits on the
// shared rate budget first and reports the budget it receives back.
type Client struct {
	http     *http.Client
	gh       *github.Client
	endpoint string
	restURL  string
	tracker  *ratelimit.Tracker
	logger   *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithRESTBaseURL points the REST client (used for rate limit priming) at a GitHub
// Enterprise or test server.
func WithRESTBaseURL(url string) Option {
	return func(c *Client) { c.restURL = url }
}

// WithBackoff overrides the retry backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, tracker *ratelimit.Tracker, logger *slog.Logger, opts ...Option) (*Client, error) {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = requestTimeout

	c := &Client{
		http:           tc,
		gh:             github.NewClient(tc),
		endpoint:       DefaultGraphQLURL,
		tracker:        tracker,
		logger:         logger,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.restURL != "" {
		gh, err := c.gh.WithEnterpriseURLs(c.restURL, c.restURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST base URL %q: %w", c.restURL, err)
		}
		c.gh = gh
	}
	return c, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   Payload        `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

type rateLimitInfo struct {
	Limit     int       `json:"limit"`
	Cost      int       `json:"cost"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Execute sends one logical GraphQL query. Transient failures are retried with
// exponential backoff up to maxAttempts; permanent failures return at once.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (Payload, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &apperrors.PermanentRequestError{Err: fmt.Errorf("encode request: %w", err)}
	}

	var (
		payload  Payload
		attempts int
	)
	operation := func() error {
		attempts++
		if err := c.tracker.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		p, err := c.do(ctx, body)
		if err != nil {
			var perm *apperrors.PermanentRequestError
			if errors.As(err, &perm) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		payload = p
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("GraphQL request failed, retrying",
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"backoff", next.String(),
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify); err != nil {
		var transient *apperrors.TransientRequestError
		if errors.As(err, &transient) {
			transient.Attempts = attempts
		}
		return nil, err
	}

	// Pay the wait now so the next caller starts with a healthy budget.
	if err := c.tracker.Wait(ctx); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
}

// do performs a single HTTP round trip and classifies the outcome.
func (c *Client) do(ctx context.Context, body []byte) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &apperrors.PermanentRequestError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github.v4+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperrors.TransientRequestError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperrors.TransientRequestError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp, raw)
	}

	var env graphQLResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &apperrors.PermanentRequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	// The budget is reported even when the query itself failed.
	if rl, ok := env.Data["rateLimit"]; ok {
		var info *rateLimitInfo
		if err := json.Unmarshal(rl, &info); err == nil && info != nil {
			c.tracker.Observe(info.Remaining, info.ResetAt)
			c.logger.Debug("Rate budget reported", "remaining", info.Remaining, "cost", info.Cost, "limit", info.Limit, "reset_at", info.ResetAt)
		}
		delete(env.Data, "rateLimit")
	}

	if len(env.Errors) > 0 {
		return nil, classifyGraphQLErrors(env.Errors)
	}
	if env.Data == nil {
		return nil, &apperrors.PermanentRequestError{StatusCode: resp.StatusCode, Err: errors.New("response carried no data")}
	}
	return env.Data, nil
}

// classifyStatus maps a non-200 response to a transient or permanent error. Rate
// limit responses block the tracker until their reset so the retry waits for it.
func (c *Client) classifyStatus(resp *http.Response, body []byte) error {
	err := fmt.Errorf("unexpected status %s: %s", resp.Status, snippet(body))

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return &apperrors.TransientRequestError{StatusCode: resp.StatusCode, Err: err}
	case isRateLimited(resp):
		if reset, ok := resetFromHeaders(resp.Header, c.now()); ok {
			c.tracker.Block(reset)
			err = &apperrors.RateLimitedError{ResetAt: reset}
		}
		return &apperrors.TransientRequestError{StatusCode: resp.StatusCode, Err: err}
	default:
		return &apperrors.PermanentRequestError{StatusCode: resp.StatusCode, Err: err}
	}
}

func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden &&
		(resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "")
}

func resetFromHeaders(h http.Header, now time.Time) (time.Time, bool) {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second), true
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(unix, 0), true
		}
	}
	return time.Time{}, false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// PrimeRateBudget seeds the tracker from the REST rate_limit endpoint so the first
// GraphQL calls of a run already respect a nearly exhausted budget.
func (c *Client) PrimeRateBudget(ctx context.Context) error {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("fetch rate limits: %w", err)
	}
	if limits.GraphQL == nil {
		return nil
	}
	c.tracker.Observe(limits.GraphQL.Remaining, limits.GraphQL.Reset.Time)
	c.logger.Info("Rate budget primed", "remaining", limits.GraphQL.Remaining, "limit", limits.GraphQL.Limit, "reset_at", limits.GraphQL.Reset.Time)
	return nil
}
