package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	DBConnKey contextKey = "db_conn"
	DBTxKey   contextKey = "db_tx"
)

// ClaimsContextKey is the echo context key under which the auth middleware
// leaves the verified token claims.
const ClaimsContextKey = "jwt_claims"

// Querier is the statement surface shared by pools, pooled connections and
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ClaimsMiddleware pins one pooled connection to the request and sets
// request.jwt.claims (and optionally the database role) on it, so row level
// security policies see the caller. Requests without claims pass through on
// the shared pool.
func ClaimsMiddleware(pool *pgxpool.Pool, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := c.Get(ClaimsContextKey)
			if claims == nil {
				return next(c)
			}
			raw, err := json.Marshal(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid token claims")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			if _, err := conn.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, false)", string(raw)); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "claims binding failed")
			}
			if role != "" {
				if _, err := conn.Exec(ctx, "SET ROLE "+pgx.Identifier{role}.Sanitize()); err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "claims binding failed")
				}
			}
			// Reset before the connection returns to the pool. A background
			// context is used so a cancelled request still cleans up.
			defer func() {
				_, _ = conn.Exec(context.Background(), "SELECT set_config('request.jwt.claims', '', false)")
				if role != "" {
					_, _ = conn.Exec(context.Background(), "RESET ROLE")
				}
			}()

			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// ConnFromContext retrieves the request-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TxFromContext retrieves a transaction started with WithTx.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// Conn picks the innermost querier for ctx: an open transaction, then the
// request connection, then the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// WithTx begins a transaction on the request connection when there is one,
// otherwise on the pool, and returns a context carrying it.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	var (
		tx  pgx.Tx
		err error
	)
	if c := ConnFromContext(ctx); c != nil {
		tx, err = c.Begin(ctx)
	} else {
		tx, err = pool.Begin(ctx)
	}
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure. When
// constraint is non-empty the violated constraint name must match too.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
