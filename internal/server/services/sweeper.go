package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
)

// Sweeper periodically deactivates sessions nobody has used within the
// retention window.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	retention   time.Duration
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewSweeper(db *sql.DB, m repomanager.RepositoryManager, retention, interval time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Discard()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		db:          db,
		repomanager: m,
		retention:   retention,
		interval:    interval,
		logger:      logger.With("module", "session_sweeper"),
		now:         time.Now,
	}
}

// SweepOnce deactivates every active session whose last activity is older
// than the retention window.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.repomanager.Sessions(s.db).DeactivateInactiveSince(ctx, now.Add(-s.retention), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "idle sessions deactivated", "count", n)
	}
	return n, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, "session sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
