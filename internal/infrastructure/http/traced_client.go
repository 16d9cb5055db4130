package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"3tcapital/tokenbroker/internal/core/audit"
	ctxutil "3tcapital/tokenbroker/internal/infrastructure/context"
	"3tcapital/tokenbroker/internal/infrastructure/security"
)

// TracedClient wraps an HTTP client for calls to the token authority. It logs
// every request and response with credentials redacted, forwards the fetch
// attempt ID as X-Correlation-ID and persists an audit exchange per call.
type TracedClient struct {
	client       *http.Client
	log          *slog.Logger
	auditRepo    audit.Repository
	authority    string
	auditEnabled bool
	auditTimeout time.Duration
	logReqBody   bool
	logRespBody  bool
	maxBodySize  int
}

// TracedClientConfig holds configuration for the traced HTTP client.
type TracedClientConfig struct {
	Timeout         time.Duration
	AuditEnabled    bool
	AuditTimeout    time.Duration
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
	MaxConnsPerHost int // Maximum connections per host (0 = use default 10)
}

// NewTracedClient creates a traced HTTP client. auditRepo may be nil, which
// disables auditing.
func NewTracedClient(cfg TracedClientConfig, log *slog.Logger, auditRepo audit.Repository, authority string) *TracedClient {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 16384 // 16KB default
	}
	if cfg.AuditTimeout == 0 {
		cfg.AuditTimeout = 10 * time.Second
	}
	maxConnsPerHost := cfg.MaxConnsPerHost
	if maxConnsPerHost == 0 {
		maxConnsPerHost = 10
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxConnsPerHost,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &TracedClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log:          log,
		auditRepo:    auditRepo,
		authority:    authority,
		auditEnabled: cfg.AuditEnabled && auditRepo != nil,
		auditTimeout: cfg.AuditTimeout,
		logReqBody:   cfg.LogRequestBody,
		logRespBody:  cfg.LogResponseBody,
		maxBodySize:  cfg.MaxBodySize,
	}
}

// Do executes an HTTP request with tracing and auditing.
func (c *TracedClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attemptID := ctxutil.GetCorrelationID(ctx)
	operation := c.extractOperation(req)
	start := time.Now()

	if attemptID != "" {
		req.Header.Set("X-Correlation-ID", attemptID)
	}

	var requestBody []byte
	if req.Body != nil {
		var err error
		requestBody, err = io.ReadAll(req.Body)
		if err != nil {
			c.log.Error("Failed to read request body for tracing",
				"error", err,
				"attempt_id", attemptID,
			)
		}
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	c.logRequest(attemptID, operation, req, requestBody)

	resp, err := c.client.Do(req)
	duration := time.Since(start)

	var responseBody []byte
	if resp != nil && resp.Body != nil {
		var readErr error
		responseBody, readErr = io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
		if readErr != nil && err == nil {
			err = fmt.Errorf("read response body: %w", readErr)
		}
	}

	c.logResponse(attemptID, operation, req, resp, err, duration, responseBody)

	if c.auditEnabled {
		exchange := c.buildExchange(attemptID, operation, req, resp, err, duration, requestBody, responseBody)

		// The request context ends with the refresh call; the audit write must outlive it.
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("Panic in audit persistence",
						"panic", r,
						"attempt_id", exchange.AttemptID,
					)
				}
			}()

			saveCtx, cancel := context.WithTimeout(context.Background(), c.auditTimeout)
			defer cancel()

			if saveErr := c.auditRepo.Save(saveCtx, exchange); saveErr != nil {
				c.log.Error("Failed to persist audit exchange",
					"error", saveErr,
					"attempt_id", exchange.AttemptID,
					"authority", c.authority,
					"operation", exchange.Operation,
				)
			}
		}()
	}

	return resp, err
}

func (c *TracedClient) logRequest(attemptID, operation string, req *http.Request, body []byte) {
	attrs := []any{
		"attempt_id", attemptID,
		"authority", c.authority,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
	}

	if c.logReqBody && len(body) > 0 {
		attrs = append(attrs, "request_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}

	c.log.Debug("authority_request", attrs...)
}

func (c *TracedClient) logResponse(attemptID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, body []byte) {
	attrs := []any{
		"attempt_id", attemptID,
		"authority", c.authority,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.log.Error("authority_request_failed", attrs...)
		return
	}

	attrs = append(attrs, "status", resp.StatusCode, "response_size_bytes", len(body))
	if c.logRespBody && len(body) > 0 {
		attrs = append(attrs, "response_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}

	switch {
	case resp.StatusCode >= 500:
		c.log.Error("authority_response", attrs...)
	case resp.StatusCode >= 400:
		c.log.Warn("authority_response", attrs...)
	default:
		c.log.Info("authority_response", attrs...)
	}
}

func (c *TracedClient) buildExchange(attemptID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, requestBody, responseBody []byte) audit.Exchange {
	if attemptID == "" {
		attemptID = fmt.Sprintf("untracked-%d", time.Now().UnixNano())
	}

	exchange := audit.Exchange{
		AttemptID:      attemptID,
		Authority:      c.authority,
		Operation:      operation,
		RequestMethod:  req.Method,
		RequestURL:     security.SanitizeURL(req.URL.String()),
		RequestHeaders: security.SanitizeHeaders(req.Header),
		DurationMs:     duration.Milliseconds(),
	}

	if len(requestBody) > 0 {
		exchange.RequestBody = security.SanitizeBody(requestBody, c.maxBodySize)
	}

	if resp != nil {
		status := resp.StatusCode
		exchange.ResponseStatus = &status
		exchange.ResponseHeaders = security.SanitizeHeaders(resp.Header)
		if len(responseBody) > 0 {
			exchange.ResponseBody = security.SanitizeBody(responseBody, c.maxBodySize)
		}
	}

	if err != nil {
		exchange.ErrorMessage = err.Error()
	}

	return exchange
}

// extractOperation names the call after the last path segment.
func (c *TracedClient) extractOperation(req *http.Request) string {
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")

	if last := parts[len(parts)-1]; last != "" {
		return strings.ToUpper(last[:1]) + last[1:]
	}

	return fmt.Sprintf("%s_%s", req.Method, c.authority)
}
