package observer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/sqlitekit/internal/metrics"
	"github.com/roach88/sqlitekit/internal/schema"
)

// Broker holds the observed-table set, the TableInfo cache and the
// broadcast buffer for one database. It outlives any single write guard.
type Broker struct {
	mu       sync.RWMutex
	observed map[string]struct{}
	info     map[string]*schema.TableInfo

	resolve       singleflight.Group
	bus           *broadcast
	clock         Clock
	captureValues bool
	logger        *slog.Logger
}

// NewBroker creates a broker observing cfg.Tables.
func NewBroker(cfg Config) *Broker {
	cfg = cfg.withDefaults()
	b := &Broker{
		observed:      make(map[string]struct{}),
		info:          make(map[string]*schema.TableInfo),
		bus:           newBroadcast(cfg.ChannelCapacity),
		clock:         cfg.Clock,
		captureValues: cfg.CaptureValues,
		logger:        cfg.Logger,
	}
	b.Observe(cfg.Tables...)
	return b
}

// Observe adds tables to the observed set. Their layout is resolved on the
// next writer acquisition.
func (b *Broker) Observe(tables ...string) {
	if len(tables) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tables {
		b.observed[t] = struct{}{}
	}
}

// Subscribe observes tables and returns a receiver for all changes
// published from now on. The receiver is not filtered by tables; use
// NewStream for that.
func (b *Broker) Subscribe(tables ...string) *Receiver {
	b.Observe(tables...)
	return b.bus.subscribe()
}

// ObservedTables returns the observed table names, sorted.
func (b *Broker) ObservedTables() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tables := make([]string, 0, len(b.observed))
	for t := range b.observed {
		tables = append(tables, t)
	}
	slices.Sort(tables)
	return tables
}

// IsObserved reports whether changes to table are captured.
func (b *Broker) IsObserved(table string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.observed[table]
	return ok
}

// TableInfo returns the cached layout of table.
func (b *Broker) TableInfo(table string) (*schema.TableInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.info[table]
	return info, ok
}

// EnsureTableInfo resolves the layout of every observed table not yet
// cached, using one connection from pool. Missing tables and query errors
// are logged and skipped; they are retried on the next call.
func (b *Broker) EnsureTableInfo(ctx context.Context, pool *sql.DB) {
	b.mu.RLock()
	var missing []string
	for t := range b.observed {
		if _, ok := b.info[t]; !ok {
			missing = append(missing, t)
		}
	}
	b.mu.RUnlock()
	if len(missing) == 0 {
		return
	}
	slices.Sort(missing)

	conn, err := pool.Conn(ctx)
	if err != nil {
		b.logger.Warn("schema resolution skipped", "error", err)
		return
	}
	defer conn.Close()

	for _, table := range missing {
		// Concurrent writers resolving the same table share one query.
		_, err, _ := b.resolve.Do(table, func() (any, error) {
			if _, ok := b.TableInfo(table); ok {
				return nil, nil
			}
			info, err := schema.QueryTableInfo(ctx, conn, table)
			if err != nil {
				return nil, err
			}
			if info == nil {
				b.logger.Warn("observed table not found", "table", table)
				return nil, nil
			}
			b.mu.Lock()
			b.info[table] = info
			b.mu.Unlock()
			b.logger.Debug("table layout resolved",
				"table", table,
				"pk_columns", info.PKColumnNames(),
				"without_rowid", info.WithoutRowid,
			)
			return nil, nil
		})
		if err != nil {
			b.logger.Warn("schema resolution failed", "table", table, "error", err)
		}
	}
}

// checkCapturable fails when an observed table's changes cannot be
// captured by this build. Only resolved layouts are checked.
func (b *Broker) checkCapturable() error {
	if CapturesValues {
		return nil
	}
	for _, table := range b.ObservedTables() {
		if info, ok := b.TableInfo(table); ok && info.WithoutRowid {
			return fmt.Errorf("table %s: %w", table, ErrWithoutRowidCapture)
		}
	}
	return nil
}

// publish sends committed changes to the broadcast buffer.
func (b *Broker) publish(changes []TableChange) {
	for _, ch := range changes {
		if b.bus.send(ch) {
			metrics.ChangesPublishedTotal.WithLabelValues(ch.Table).Inc()
		} else {
			metrics.ChangesDroppedTotal.Inc()
		}
	}
}

func (b *Broker) now() time.Time {
	return b.clock.Now()
}

// Close wakes every receiver; they drain what is buffered and then
// receive ErrClosed. Later changes are dropped.
func (b *Broker) Close() {
	b.bus.close()
}
