package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.FarmCatalog = (*SubgraphCatalog)(nil)

const farmsQuery = `query Farms($first: Int!, $lastID: String!) {
  farms(first: $first, orderBy: id, orderDirection: asc, where: { id_gt: $lastID }) {
    id
    rewardLocker
    pools { pid pool rewardTokens }
  }
}`

// SubgraphConfig holds configuration for the SubgraphCatalog.
type SubgraphConfig struct {
	// Endpoints maps chain id to the subgraph GraphQL endpoint.
	Endpoints map[int64]string

	// PageSize is the number of farms requested per query.
	PageSize int

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Use -1 to disable retries (0 uses the default).
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimitPerSec is the request rate limit.
	RateLimitPerSec int

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// SubgraphConfigDefaults returns a config with default values.
func SubgraphConfigDefaults() SubgraphConfig {
	return SubgraphConfig{
		PageSize:        1000,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		RateLimitPerSec: 5,
		Logger:          slog.Default(),
	}
}

// SubgraphCatalog loads farms from a GraphQL subgraph indexing farm
// deployments.
type SubgraphCatalog struct {
	config     SubgraphConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewSubgraphCatalog creates a new SubgraphCatalog.
func NewSubgraphCatalog(config SubgraphConfig) (*SubgraphCatalog, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}

	defaults := SubgraphConfigDefaults()
	if config.PageSize == 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	} else if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RateLimitPerSec == 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &SubgraphCatalog{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1),
		logger:     config.Logger.With("component", "subgraph-catalog"),
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Farms []rawFarm `json:"farms"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Farms pages through every farm indexed for chainID.
func (c *SubgraphCatalog) Farms(ctx context.Context, chainID int64) ([]entity.Farm, error) {
	endpoint, ok := c.config.Endpoints[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: no subgraph endpoint for chain %d", blockchain.ErrUnknownChain, chainID)
	}

	var raw []rawFarm
	lastID := ""
	for {
		var page graphQLResponse
		req := graphQLRequest{
			Query:     farmsQuery,
			Variables: map[string]any{"first": c.config.PageSize, "lastID": lastID},
		}
		if err := c.doRequest(ctx, endpoint, req, &page); err != nil {
			return nil, fmt.Errorf("fetching farms for chain %d: %w", chainID, err)
		}
		raw = append(raw, page.Data.Farms...)
		if len(page.Data.Farms) < c.config.PageSize {
			break
		}
		lastID = page.Data.Farms[len(page.Data.Farms)-1].Address
	}

	farms, err := toFarms(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid subgraph farm for chain %d: %w", chainID, err)
	}
	c.logger.Debug("loaded farms from subgraph", "chainID", chainID, "farms", len(farms))
	return farms, nil
}

func (c *SubgraphCatalog) doRequest(ctx context.Context, endpoint string, req graphQLRequest, result *graphQLResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialBackoff
	b.MaxInterval = c.config.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.config.MaxRetries,
			"backoff", wait,
			"error", err,
		)
	}

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, endpoint, body, result)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxRetries)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

func (c *SubgraphCatalog) doSingleRequest(ctx context.Context, endpoint string, body []byte, result *graphQLResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (HTTP 429)")
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(respBody)))
	}

	*result = graphQLResponse{}
	if err := json.Unmarshal(respBody, result); err != nil {
		return backoff.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Message
		}
		return backoff.Permanent(fmt.Errorf("graphql error: %s", strings.Join(msgs, "; ")))
	}
	return nil
}
