package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/resilience/retry"
)

// Querier is the statement surface handed to store operations.
// *sql.Conn and *sql.Tx both satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Operation is one logical store operation.
type Operation func(ctx context.Context, q Querier) error

// errAttemptTimeout marks an attempt that hit OperationTimeout while the caller's
// context was still alive.
var errAttemptTimeout = errors.New("store operation timed out")

// ManagerConfig holds the store manager limits.
type ManagerConfig struct {
	// OperationTimeout bounds every wait on the store: connect, ping and query.
	OperationTimeout time.Duration

	// Retry controls attempts and backoff for transient faults.
	Retry retry.Config
}

// DefaultManagerConfig returns the default store manager limits.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		OperationTimeout: 10 * time.Second,
		Retry:            retry.StoreConfig(),
	}
}

// Manager funnels all store access through retrying, reconnecting executors and
// reports one outcome per call to the health monitor under the storage capability.
//
// Execute uses a short-lived connection per call and takes no lock.
// ExecuteShared and ExecuteTx serialize on a single long-lived connection.
type Manager struct {
	db      *sql.DB
	monitor health.OutcomeRecorder
	cfg     ManagerConfig
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	shared *sql.Conn
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the clock used for session timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) { m.newID = gen }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a store manager over db.
func NewManager(db *sql.DB, monitor health.OutcomeRecorder, cfg ManagerConfig, opts ...ManagerOption) *Manager {
	def := DefaultManagerConfig()
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = def.OperationTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = def.Retry
	}
	cfg.Retry.Retryable = IsTransient

	m := &Manager{
		db:      db,
		monitor: monitor,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DB returns the underlying pool.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Execute runs op on a fresh pooled connection that is pinged before use.
func (m *Manager) Execute(ctx context.Context, op Operation) error {
	return m.do(ctx, "execute", func(ctx context.Context) error {
		conn, err := m.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		defer func() { _ = conn.Close() }()

		if err := conn.PingContext(ctx); err != nil {
			return fmt.Errorf("ping connection: %w", err)
		}
		return op(ctx, conn)
	})
}

// ExecuteShared runs op on the shared connection while holding the lock.
// A missing or dead shared connection is re-acquired before the attempt.
func (m *Manager) ExecuteShared(ctx context.Context, op Operation) error {
	return m.do(ctx, "execute_shared", func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		conn, err := m.sharedConnLocked(ctx)
		if err != nil {
			return err
		}
		err = op(ctx, conn)
		if IsTransient(err) {
			m.dropSharedLocked()
		}
		return err
	})
}

// ExecuteTx runs op inside a transaction on the shared connection.
// The transaction is committed when op returns nil and rolled back otherwise.
func (m *Manager) ExecuteTx(ctx context.Context, op Operation) error {
	return m.do(ctx, "execute_tx", func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		conn, err := m.sharedConnLocked(ctx)
		if err != nil {
			return err
		}

		err = runTx(ctx, conn, op)
		if IsTransient(err) {
			m.dropSharedLocked()
		}
		return err
	})
}

func runTx(ctx context.Context, conn *sql.Conn, op Operation) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := op(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the store is reachable with a single check. It does not
// retry, so one failed ping is one failure reported to the monitor.
func (m *Manager) Ping(ctx context.Context) error {
	start := m.now()
	err := m.bounded(ctx, func(ctx context.Context) error {
		return m.db.PingContext(ctx)
	})
	return m.report(ctx, "ping", m.now().Sub(start), 1, err)
}

// Reconnect discards the shared connection and acquires a new one.
func (m *Manager) Reconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropSharedLocked()
	if _, err := m.sharedConnLocked(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	m.logger.Info("store shared connection re-established")
	return nil
}

// Close releases the shared connection. The pool itself is owned by the caller.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropSharedLocked()
	return nil
}

// sharedConnLocked returns a live shared connection. m.mu must be held.
func (m *Manager) sharedConnLocked(ctx context.Context) (*sql.Conn, error) {
	if m.shared != nil {
		err := m.shared.PingContext(ctx)
		if err == nil {
			return m.shared, nil
		}
		m.logger.Warn("shared store connection lost, reconnecting", slog.Any("error", err))
		m.dropSharedLocked()
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire shared connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping shared connection: %w", err)
	}
	m.shared = conn
	return conn, nil
}

func (m *Manager) dropSharedLocked() {
	if m.shared == nil {
		return
	}
	_ = m.shared.Close()
	m.shared = nil
}

// do runs one attempt function under the retry policy and reports the outcome.
//
// Transient faults surviving every attempt are returned as KindConnectionLost.
// Other errors are returned unchanged and count as a reachable store.
func (m *Manager) do(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	start := m.now()

	err := retry.WithBackoff(ctx, m.cfg.Retry, func() error {
		return m.bounded(ctx, attempt)
	})
	return m.report(ctx, op, m.now().Sub(start), m.cfg.Retry.MaxAttempts, err)
}

// bounded runs one attempt under OperationTimeout. A timeout of the attempt
// itself, rather than of ctx, is marked transient.
func (m *Manager) bounded(ctx context.Context, attempt func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	err := attempt(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", errAttemptTimeout, err)
	}
	return err
}

// report records the outcome of op with the monitor and classifies err.
func (m *Manager) report(ctx context.Context, op string, elapsed time.Duration, attempts int, err error) error {
	switch {
	case err == nil:
		m.monitor.RecordOutcome(entity.CapabilityStorage, health.Success(elapsed))
		return nil
	case IsTransient(err):
		m.monitor.RecordOutcome(entity.CapabilityStorage, health.Failure(entity.KindConnectionLost, elapsed))
		m.logger.Error("store operation failed",
			slog.String("op", op),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return entity.NewError(entity.KindConnectionLost, op, err)
	case ctx.Err() != nil:
		return err
	default:
		m.monitor.RecordOutcome(entity.CapabilityStorage, health.Success(elapsed))
		return err
	}
}

// IsTransient reports whether err is a connection-level fault worth a reconnect and retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errAttemptTimeout) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P01-57P03: server shutting down or unavailable
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	return retry.IsRetryable(err)
}
