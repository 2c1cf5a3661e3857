// Package telegram sends operator notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"incident-detector/internal/config"
)

const (
	defaultEndpoint = "https://api.telegram.org"
	redacted        = "[REDACTED]"
)

// Client posts messages to one chat. A client without credentials is a no-op.
type Client struct {
	token      string
	chatID     string
	enabled    bool
	httpClient *resty.Client
	logger     zerolog.Logger
}

// sendMessageRequest is the body of the sendMessage method.
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// NewClient creates a Telegram client.
func NewClient(cfg *config.TelegramConfig, retryCfg *config.RetryConfig, logger zerolog.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	retry := config.RetryConfig{MaxRetries: 3, BaseDelay: time.Second}
	if retryCfg != nil {
		retry = *retryCfg
	}

	logger = logger.With().Str("component", "telegram-client").Logger()

	httpClient := resty.New().
		SetLogger(&restyLogger{logger: logger, token: cfg.BotToken}).
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetPathParam("token", cfg.BotToken).
		SetRetryCount(retry.MaxRetries).
		SetRetryWaitTime(retry.BaseDelay).
		SetRetryMaxWaitTime(retry.BaseDelay * 8).
		AddRetryCondition(retryCondition)

	return &Client{
		token:      cfg.BotToken,
		chatID:     cfg.ChatID,
		enabled:    cfg.Enabled(),
		httpClient: httpClient,
		logger:     logger,
	}
}

// retryCondition retries on transport errors, 429 and 5xx responses.
func retryCondition(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
}

// Enabled reports whether messages are actually sent.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Send posts text to the configured chat.
func (c *Client) Send(ctx context.Context, text string) error {
	if !c.enabled {
		c.logger.Debug().Msg("telegram credentials not set, dropping message")
		return nil
	}

	var result apiResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: c.chatID, Text: text}).
		SetResult(&result).
		SetError(&result).
		Post("/bot{token}/sendMessage")
	if err != nil {
		// The request URL carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("failed to send telegram message: %w", errors.New(redact(err.Error(), c.token)))
	}

	if resp.StatusCode() != http.StatusOK || !result.OK {
		desc := result.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode())
		}
		return fmt.Errorf("telegram API returned status %d: %w", resp.StatusCode(), errors.New(desc))
	}

	c.logger.Debug().Int("length", len(text)).Msg("telegram message sent")
	return nil
}

// redact removes the bot token from s.
func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, redacted)
}

// restyLogger routes resty's retry and warning output through zerolog with
// the bot token removed.
type restyLogger struct {
	logger zerolog.Logger
	token  string
}

func (l *restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msg(redact(fmt.Sprintf(format, v...), l.token))
}

func (l *restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msg(redact(fmt.Sprintf(format, v...), l.token))
}

func (l *restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msg(redact(fmt.Sprintf(format, v...), l.token))
}
