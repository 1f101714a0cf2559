// Package history reads the call center's PostgreSQL database: the queue
// audit log the switch writes and the phonebook used to recognise callers.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/model"
)

// querier is the subset of *pgxpool.Pool the stores use, so that pgxmock
// can stand in for it.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPool connects to PostgreSQL and checks the connection.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// Store reads pause history out of queue_log.
type Store struct {
	db     querier
	logger *zap.Logger
}

func NewStore(db querier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Pause rows are written either by the queue application (agent = member
// interface) or by the proxy's own QueueLog actions, which may target
// "all" queues at once.
const lastPausesSQL = `
SELECT DISTINCT ON (event) event, time, COALESCE(data1, '')
FROM queue_log
WHERE queuename IN ($1, 'all')
  AND agent IN ($2, $3)
  AND event IN ('PAUSE', 'UNPAUSE')
ORDER BY event, time DESC`

// LastPauses returns the most recent pause and unpause of a member. A
// member that never paused gets zero values and no error.
func (s *Store) LastPauses(ctx context.Context, queue, member string) (in, out model.PauseEvent, err error) {
	rows, err := s.db.Query(ctx, lastPausesSQL, queue, member, "Local/"+member+"@from-queue/n")
	if err != nil {
		return in, out, fmt.Errorf("querying pause history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			event, reason string
			at            time.Time
		)
		if err := rows.Scan(&event, &at, &reason); err != nil {
			return in, out, fmt.Errorf("scanning pause history: %w", err)
		}
		switch event {
		case "PAUSE":
			in = model.PauseEvent{At: at, Reason: reason}
		case "UNPAUSE":
			out = model.PauseEvent{At: at}
		}
	}
	if err := rows.Err(); err != nil {
		return in, out, fmt.Errorf("reading pause history: %w", err)
	}
	s.logger.Debug("pause history loaded",
		zap.String("queue", queue), zap.String("member", member),
		zap.Time("paused", in.At), zap.Time("unpaused", out.At))
	return in, out, nil
}
