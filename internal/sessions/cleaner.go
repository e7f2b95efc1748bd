package sessions

import (
	"context"
	"time"
)

// Logger provides logging methods for the cleaner
type Logger interface {
	Info(args ...interface{})
	Error(args ...interface{})
}

// Cleaner periodically removes expired session rows. Expired sessions are
// already unusable, this only keeps the table from growing.
type Cleaner struct {
	store    Store
	logger   Logger
	interval time.Duration
}

func NewCleaner(cfg Config, store Store, logger Logger) *Cleaner {
	interval := time.Duration(cfg.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &Cleaner{store: store, logger: logger, interval: interval}
}

// Run deletes expired sessions on every interval until the context is done.
func (c *Cleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deleted, err := c.store.DeleteExpiredSessions(context.WithoutCancel(ctx))
			if err != nil {
				c.logger.Error("Failure deleting expired sessions: ", err)
				continue
			}
			if deleted > 0 {
				c.logger.Info("Deleted expired sessions: ", deleted)
			}
		}
	}
}
