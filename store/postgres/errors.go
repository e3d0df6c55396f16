package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	qu "github.com/gabteles/qu-mongoid"
)

// wrap reports server-side statement errors as-is and every other failure
// except context errors as storage unavailability.
func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !isConnectionClass(pgErr.Code) {
		return fmt.Errorf("qu/postgres: %s: %w", op, err)
	}
	return fmt.Errorf("qu/postgres: %s: %w: %w", op, qu.ErrStorageUnavailable, err)
}

// isConnectionClass reports SQLSTATE class 08 (connection exception) and
// 57P0x (operator intervention, e.g. admin shutdown).
func isConnectionClass(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch {
	case code[:2] == "08":
		return true
	case len(code) == 5 && code[:4] == "57P0":
		return true
	}
	return false
}
