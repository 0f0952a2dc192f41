package pg

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTransient marks a database error that persisted through a retry and
// is likely to clear on its own. Callers may surface it as a retryable
// failure instead of a hard error.
var ErrTransient = errors.New("pg: transient database error")

// withRetry runs a complete store operation and retries it exactly once
// when the failure looks like a broken connection. Transactional operations
// are safe to pass here because the whole transaction lives inside fn.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !isTransient(err) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// isTransient reports whether the error indicates a connection-level
// failure rather than a semantic one. SQLSTATE class 08 covers connection
// exceptions; pgx surfaces mid-query breakage as closed or reset network
// connections.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "unexpected EOF")
}
