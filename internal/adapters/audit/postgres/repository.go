package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"3tcapital/tokenbroker/internal/core/audit"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the audit.Repository interface using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a new PostgreSQL audit repository. log may be nil.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) *Repository {
	return &Repository{pool: pool, log: log}
}

var _ audit.Repository = (*Repository)(nil)

const insertExchangeQuery = `
	INSERT INTO refresh_audit_log (
		attempt_id, authority, operation, request_method, request_url,
		request_headers, request_body, response_status, response_headers,
		response_body, duration_ms, error_message
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const selectByAttemptQuery = `
	SELECT id, attempt_id, authority, operation, request_method, request_url,
	       request_headers, request_body, response_status, response_headers,
	       response_body, duration_ms, error_message, created_at
	FROM refresh_audit_log
	WHERE attempt_id = $1
	ORDER BY created_at DESC, id DESC
`

// Save persists an exchange.
func (r *Repository) Save(ctx context.Context, exchange audit.Exchange) error {
	args, err := insertArgs(exchange)
	if err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, insertExchangeQuery, args...); err != nil {
		err = fmt.Errorf("insert audit exchange: %w", err)
		if r.log != nil {
			r.log.Error("Failed to insert audit exchange",
				"attempt_id", exchange.AttemptID,
				"authority", exchange.Authority,
				"operation", exchange.Operation,
				"response_status", exchange.ResponseStatus,
				"error", err,
			)
		}
		return err
	}

	if r.log != nil {
		r.log.Debug("Audit exchange saved",
			"attempt_id", exchange.AttemptID,
			"authority", exchange.Authority,
			"operation", exchange.Operation,
			"duration_ms", exchange.DurationMs,
		)
	}
	return nil
}

// FindByAttemptID retrieves all exchanges of one fetch attempt.
func (r *Repository) FindByAttemptID(ctx context.Context, attemptID string) ([]audit.Exchange, error) {
	rows, err := r.pool.Query(ctx, selectByAttemptQuery, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query audit exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []audit.Exchange
	for rows.Next() {
		var e audit.Exchange
		var requestHeadersJSON, responseHeadersJSON []byte
		var requestBodyJSON, responseBodyJSON []byte

		err := rows.Scan(
			&e.ID,
			&e.AttemptID,
			&e.Authority,
			&e.Operation,
			&e.RequestMethod,
			&e.RequestURL,
			&requestHeadersJSON,
			&requestBodyJSON,
			&e.ResponseStatus,
			&responseHeadersJSON,
			&responseBodyJSON,
			&e.DurationMs,
			&e.ErrorMessage,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit exchange: %w", err)
		}

		if err := decodeHeaders(requestHeadersJSON, &e.RequestHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal request headers: %w", err)
		}
		if err := decodeHeaders(responseHeadersJSON, &e.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal response headers: %w", err)
		}
		e.RequestBody = requestBodyJSON
		e.ResponseBody = responseBodyJSON

		exchanges = append(exchanges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return exchanges, nil
}

// insertArgs converts an exchange into the positional arguments of the insert.
func insertArgs(e audit.Exchange) ([]any, error) {
	requestHeaders, err := encodeHeaders(e.RequestHeaders)
	if err != nil {
		return nil, fmt.Errorf("marshal request headers: %w", err)
	}
	responseHeaders, err := encodeHeaders(e.ResponseHeaders)
	if err != nil {
		return nil, fmt.Errorf("marshal response headers: %w", err)
	}

	// Empty bodies are stored as NULL rather than as invalid JSONB.
	var requestBody, responseBody any
	if len(e.RequestBody) > 0 {
		requestBody = e.RequestBody
	}
	if len(e.ResponseBody) > 0 {
		responseBody = e.ResponseBody
	}

	return []any{
		e.AttemptID,
		e.Authority,
		e.Operation,
		e.RequestMethod,
		e.RequestURL,
		requestHeaders,
		requestBody,
		e.ResponseStatus,
		responseHeaders,
		responseBody,
		e.DurationMs,
		e.ErrorMessage,
	}, nil
}

func encodeHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	return json.Marshal(headers)
}

func decodeHeaders(data []byte, dst *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
