package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxBeginner is satisfied by *sqlx.DB.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TxManager runs a unit of work inside a single database transaction.
type TxManager struct {
	db        TxBeginner
	isolation sql.IsolationLevel
}

// NewTxManager builds a TxManager. isolation accepts the DB_TX_ISOLATION names.
func NewTxManager(db TxBeginner, isolation string) *TxManager {
	return &TxManager{db: db, isolation: ParseIsolation(isolation)}
}

// WithinTx begins a transaction, hands it to fn and commits when fn returns nil.
// Any error or panic from fn rolls the transaction back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: m.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ParseIsolation maps a config value to an isolation level. Unknown values use the driver default.
// Repeatable read falls back too: enrollment counts must see rows committed while
// waiting on the course row lock.
func ParseIsolation(raw string) sql.IsolationLevel {
	switch raw {
	case "read_committed":
		return sql.LevelReadCommitted
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
