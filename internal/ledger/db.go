// Package ledger records import runs in a SQL database, Postgres or SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	postgres dialect = iota
	sqlite
)

// Ledger stores import runs.
type Ledger struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use Postgres,
// anything else is a SQLite file path (optionally prefixed with sqlite://).
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty ledger DSN")
	}

	l := &Ledger{}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
		l.db, l.dialect = db, postgres
	} else {
		path := strings.TrimPrefix(dsn, "sqlite://")
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		db, err := sql.Open("sqlite", path+sep+"_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, err
		}
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		l.db, l.dialect = db, sqlite
	}

	if err := Ping(ctx, l.db); err != nil {
		l.db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if err := l.ensureSchema(ctx); err != nil {
		l.db.Close()
		return nil, err
	}
	slog.Debug("ledger opened", "dialect", l.dialect.String())
	return l, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func (l *Ledger) Close() error { return l.db.Close() }

func (d dialect) String() string {
	if d == postgres {
		return "postgres"
	}
	return "sqlite"
}

// placeholders returns n bind parameters for the dialect.
func (d dialect) placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		if d == postgres {
			p[i] = fmt.Sprintf("$%d", i+1)
		} else {
			p[i] = "?"
		}
	}
	return strings.Join(p, ", ")
}

func (d dialect) timestampType() string {
	if d == postgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}
