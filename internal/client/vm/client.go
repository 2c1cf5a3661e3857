// Package vm provides a VictoriaMetrics/Prometheus metric source.
package vm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"incident-detector/internal/config"
	"incident-detector/internal/model"
)

// Client is a client for the VictoriaMetrics/Prometheus API.
type Client struct {
	endpoint   string             // API endpoint
	timeout    time.Duration      // Request timeout
	retry      config.RetryConfig // Retry configuration
	httpClient *resty.Client      // HTTP client
	logger     zerolog.Logger     // Logger
}

// NewClient creates a new VictoriaMetrics/Prometheus API client.
func NewClient(cfg *config.VictoriaMetricsConfig, retryCfg *config.RetryConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retry := config.RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
	}
	if retryCfg != nil {
		retry = *retryCfg
	}

	httpClient := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetRetryCount(retry.MaxRetries).
		SetRetryWaitTime(retry.BaseDelay).
		SetRetryMaxWaitTime(retry.BaseDelay * 8).
		AddRetryCondition(retryCondition)

	return &Client{
		endpoint:   cfg.Endpoint,
		timeout:    timeout,
		retry:      retry,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "vm-client").Logger(),
	}
}

// retryCondition retries on timeouts, connection failures and 5xx responses.
// 4xx responses are not retried.
func retryCondition(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode() >= 500
}

// Query executes an instant query at the /api/v1/query endpoint.
func (c *Client) Query(ctx context.Context, query string) (*QueryResponse, error) {
	c.logger.Debug().
		Str("query", query).
		Msg("executing PromQL query")

	var result QueryResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&result).
		Get("/api/v1/query")

	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Error().
			Int("status_code", resp.StatusCode()).
			Str("body", string(resp.Body())).
			Str("query", query).
			Msg("VM API returned non-200 status")
		return nil, fmt.Errorf("VM API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	if !result.IsSuccess() {
		return nil, fmt.Errorf("VM API error [%s]: %s", result.ErrorType, result.Error)
	}

	if len(result.Warnings) > 0 {
		c.logger.Warn().
			Strs("warnings", result.Warnings).
			Str("query", query).
			Msg("VM API returned warnings")
	}

	return &result, nil
}

// Average returns the mean of metric for entityID over window.
// When the selector matches several series (one per disk mount, for example)
// the highest average is returned. ok is false when no series has data.
func (c *Client) Average(ctx context.Context, metric model.TrackedMetric, entityID string, window time.Duration) (float64, bool, error) {
	query := AverageQuery(metric, entityID, window)

	resp, err := c.Query(ctx, query)
	if err != nil {
		return 0, false, err
	}

	results, err := ParseQueryResults(resp)
	if err != nil {
		return 0, false, err
	}
	if len(results) == 0 {
		return 0, false, nil
	}

	highest := results[0].Value
	for _, r := range results[1:] {
		if r.Value > highest {
			highest = r.Value
		}
	}

	c.logger.Debug().
		Str("entity", entityID).
		Str("metric", string(metric.Name)).
		Int("series", len(results)).
		Float64("average", highest).
		Msg("metric averaged")

	return highest, true, nil
}

// AverageQuery builds avg_over_time(<selector>{<dimension>="<entity>"}[<window>]).
func AverageQuery(metric model.TrackedMetric, entityID string, window time.Duration) string {
	dimension := metric.Dimension
	if dimension == "" {
		dimension = "ident"
	}
	matcher := fmt.Sprintf(`%s="%s"`, dimension, escapeLabelValue(entityID))
	selector := injectMatchersToQuery(metric.Metric, []string{matcher})
	return fmt.Sprintf("avg_over_time(%s[%s])", selector, promDuration(window))
}

// promDuration renders d in whole seconds, the finest unit every backend accepts.
func promDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%ds", secs)
}

var metricSelector = regexp.MustCompile(`([a-zA-Z_:][a-zA-Z0-9_:]*)(\{[^}]*\})?`)

// injectMatchersToQuery injects label matchers into a PromQL selector,
// appending to an existing label set when present.
func injectMatchersToQuery(query string, matchers []string) string {
	if len(matchers) == 0 {
		return query
	}

	matcherStr := strings.Join(matchers, ", ")

	return metricSelector.ReplaceAllStringFunc(query, func(match string) string {
		braceIdx := strings.Index(match, "{")
		if braceIdx == -1 {
			return match + "{" + matcherStr + "}"
		}

		metricName := match[:braceIdx]
		existingLabels := match[braceIdx+1 : len(match)-1]

		if existingLabels == "" {
			return metricName + "{" + matcherStr + "}"
		}
		return metricName + "{" + existingLabels + ", " + matcherStr + "}"
	})
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
