// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/scheduler"
	"github.com/xkilldash9x/villagebot/internal/store"
)

// InitializeStore connects to PostgreSQL, verifies the connection and applies the schema.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	// A handful of accounts write a few rows per minute.
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	st := store.New(pool, logger)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate activity schema: %w", err)
	}
	logger.Info("Activity log store initialized.")
	return st, pool, nil
}

// errActivityClosed is returned by Record after Shutdown.
var errActivityClosed = errors.New("activity log is shut down")

// activitySink hands entries to the activity consumer. Closing it under the
// write lock keeps late recorders, such as a signal-driven controller
// transition, from sending on a closed channel.
type activitySink struct {
	mu     sync.RWMutex
	closed bool
	ch     chan schemas.ActivityEntry
}

func newActivitySink(size int) *activitySink {
	return &activitySink{ch: make(chan schemas.ActivityEntry, size)}
}

func (a *activitySink) Record(ctx context.Context, entry schemas.ActivityEntry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errActivityClosed
	}
	select {
	case a.ch <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and closes the channel so the consumer drains it.
func (a *activitySink) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
}

// StartActivityConsumer launches a goroutine that reads from the activity channel and persists
// entries in batches. It manages its lifecycle using the provided WaitGroup and exits once the
// channel is closed and drained.
func StartActivityConsumer(ctx context.Context, wg *sync.WaitGroup, activityChan <-chan schemas.ActivityEntry, sink scheduler.ActivityRecorder, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Starting activity consumer goroutine.")
		defer logger.Debug("Activity consumer goroutine shut down.")

		const batchSize = 20
		const batchTimeout = 2 * time.Second

		batch := make([]schemas.ActivityEntry, 0, batchSize)
		ticker := time.NewTicker(batchTimeout)
		defer ticker.Stop()

		processBatch := func() {
			if len(batch) == 0 {
				return
			}
			// Persist with a fresh context so a cancelled run still flushes its last entries.
			persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, entry := range batch {
				if err := sink.Record(persistCtx, entry); err != nil {
					logger.Error("Failed to persist activity entry.", zap.String("action", entry.Action), zap.Error(err))
				}
			}
			logger.Debug("Persisted activity batch.", zap.Int("count", len(batch)))
			batch = batch[:0]
		}

		for {
			select {
			case entry, ok := <-activityChan:
				if !ok {
					processBatch()
					return
				}
				batch = append(batch, entry)
				if len(batch) >= batchSize {
					processBatch()
				}
			case <-ticker.C:
				processBatch()
			case <-ctx.Done():
				// Keep draining until the channel is closed by Shutdown.
				for entry := range activityChan {
					batch = append(batch, entry)
				}
				processBatch()
				return
			}
		}
	}()
}
