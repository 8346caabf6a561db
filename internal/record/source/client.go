// Package source implements the HTTP provisioning record source.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/provwatch/internal/config"
	obsmetrics "github.com/smallbiznis/provwatch/internal/observability/metrics"
	obstracing "github.com/smallbiznis/provwatch/internal/observability/tracing"
	"github.com/smallbiznis/provwatch/internal/ratelimit"
	"github.com/smallbiznis/provwatch/internal/record/domain"
)

const (
	recordsPath      = "/api/v1/provisioning-records"
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 64 << 20
)

// HTTPSource fetches the full record universe from the upstream form
// system. Listings are complete, never incremental.
type HTTPSource struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	limiter    *ratelimit.SourceFetchLimiter
	metrics    *obsmetrics.Metrics
	logger     *zap.Logger
}

type listResponse struct {
	Records []json.RawMessage `json:"records"`
}

// NewHTTPSource builds the source from config. An empty base URL is a
// configuration error surfaced on first fetch, not at construction.
func NewHTTPSource(cfg config.Config, limiter *ratelimit.SourceFetchLimiter, metrics *obsmetrics.Metrics, logger *zap.Logger) *HTTPSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSource{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.SourceBaseURL), "/"),
		authToken: strings.TrimSpace(cfg.SourceAuthToken),
		httpClient: obstracing.WrapHTTPClient(&http.Client{
			Timeout: timeout,
		}),
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchAll returns every current provisioning record. Any transport,
// auth, or decode failure is fatal to the caller's run.
func (s *HTTPSource) FetchAll(ctx context.Context) ([]domain.ProvisioningRecord, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: source base URL is not configured", obsmetrics.ErrSourceTransport)
	}
	if _, err := url.ParseRequestURI(s.baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid source base URL: %v", obsmetrics.ErrSourceTransport, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", obsmetrics.ErrSourceTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+recordsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", obsmetrics.ErrSourceTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", obsmetrics.ErrSourceTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: source returned %s", obsmetrics.ErrSourceTransport, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", obsmetrics.ErrSourceTransport, err)
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decoding record listing: %v", obsmetrics.ErrSourceTransport, err)
	}

	records := make([]domain.ProvisioningRecord, 0, len(list.Records))
	for _, raw := range list.Records {
		var rec domain.ProvisioningRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: decoding record: %v", obsmetrics.ErrSourceTransport, err)
		}
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("%w: record listing contains an entry without an id", obsmetrics.ErrSourceTransport)
		}
		records = append(records, rec)
	}

	s.metrics.RecordRecordsFetched(ctx, "http", len(records))
	s.logger.Debug("fetched provisioning records", zap.Int("count", len(records)))

	return records, nil
}
