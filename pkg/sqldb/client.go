// Package sqldb is a thin relational database client: connection lifecycle, raw queries,
// paged batch insert/update/delete and duplicate-row detection and removal.
//
// Each Client owns at most one connection and runs in autocommit mode. Table and column
// names must be plain identifiers; values are always bound as parameters.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dhima/datman/pkg/clock"
	"github.com/dhima/datman/pkg/config"
	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/platform/events"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DefaultPageSize is used when a batch operation is given a non-positive page size.
const DefaultPageSize = 100

// ErrNotConnected is returned when no connection is open and none can be restored.
var ErrNotConnected = errors.New("database is not connected")

// Opener opens a database handle for a dialect and DSN.
type Opener func(ctx context.Context, d Dialect, dsn string) (*sqlx.DB, error)

// Notifier receives an event after every successful mutation.
type Notifier interface {
	Publish(ctx context.Context, e events.MutationEvent) error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("sqldb")
		}
	}
}

// WithNotifier publishes mutation events through n.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithOpener replaces the default sqlx.Open + ping opener.
func WithOpener(o Opener) Option {
	return func(c *Client) { c.opener = o }
}

// WithClock sets the time source for mutation events.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clock.OrReal(clk) }
}

// WithPayloadLogging logs the offending records when an insert fails.
func WithPayloadLogging() Option {
	return func(c *Client) { c.logPayload = true }
}

// connState is the single live connection of a Client.
type connState struct {
	db      *sqlx.DB
	dialect Dialect
}

// Client is a database client holding at most one connection.
type Client struct {
	mu     sync.Mutex
	state  *connState
	params config.Params

	opener     Opener
	logger     *zap.Logger
	notifier   Notifier
	clock      clock.Clock
	logPayload bool
	stats      counters
}

// New creates a disconnected client.
func New(opts ...Option) *Client {
	c := &Client{
		opener: openDB,
		logger: zap.NewNop(),
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func openDB(ctx context.Context, d Dialect, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Connect opens a connection from params: a JSON document or a mapping. The "driver" key
// selects the dialect (postgres by default); "dsn" is used verbatim when present.
// An open connection is closed first. The params are kept for Reconnect.
func (c *Client) Connect(ctx context.Context, params any) error {
	p, err := config.ParseParams(params)
	if err != nil {
		c.logger.Warn("invalid connection params", zap.Error(err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		c.logger.Warn("failed to close previous connection", zap.Error(err))
	}
	c.params = p
	return c.openLocked(ctx)
}

// Close closes the connection if one is open. Stored params are kept.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

// Reconnect reopens the connection from the stored params. Without stored params it does nothing.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectLocked(ctx)
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil
}

// Dialect returns the dialect of the open connection, or nil.
func (c *Client) Dialect() Dialect {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	return c.state.dialect
}

func (c *Client) reconnectLocked(ctx context.Context) error {
	if c.params == nil {
		return nil
	}
	if err := c.closeLocked(); err != nil {
		c.logger.Warn("failed to close stale connection", zap.Error(err))
	}
	return c.openLocked(ctx)
}

func (c *Client) openLocked(ctx context.Context) error {
	const op = "connect"

	driver, _ := c.params.String("driver")
	d, err := DialectFor(driver)
	if err != nil {
		return dataerr.New(dataerr.KindInvalidArgument, op, err)
	}
	dsn, err := d.DSN(c.params)
	if err != nil {
		return dataerr.New(dataerr.KindInvalidArgument, op, err)
	}

	db, err := c.opener(ctx, d, dsn)
	if err != nil {
		c.logger.Error("failed to connect", zap.String("dialect", d.Name()), zap.Error(err))
		return dataerr.Driver(op, err)
	}
	db.SetMaxOpenConns(1)

	c.state = &connState{db: db, dialect: d}
	c.logger.Info("connected", zap.String("dialect", d.Name()))
	return nil
}

func (c *Client) closeLocked() error {
	if c.state == nil {
		return nil
	}
	err := c.state.db.Close()
	c.state = nil
	if err != nil {
		return dataerr.Driver("close", err)
	}
	return nil
}

// conn returns the open connection, reconnecting first when it has been closed.
// Callers hold c.mu.
func (c *Client) conn(ctx context.Context, op string) (*connState, error) {
	if c.state == nil {
		if err := c.reconnectLocked(ctx); err != nil {
			if dataerr.KindOf(err) == dataerr.KindDriver {
				err = dataerr.Driver(op, fmt.Errorf("%w: %w", ErrNotConnected, err))
			}
			return nil, c.fail(op, err)
		}
	}
	if c.state == nil {
		return nil, c.fail(op, dataerr.Driver(op, ErrNotConnected))
	}
	return c.state, nil
}

// Execute runs query as-is and returns every row as a tuple. The query text is not
// parameterized; escaping is the caller's responsibility.
func (c *Client) Execute(ctx context.Context, query string) ([][]any, error) {
	const op = "execute"

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.conn(ctx, op)
	if err != nil {
		return nil, err
	}

	rows, err := st.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, c.fail(op, dataerr.Driver(op, err))
	}
	defer rows.Close()

	frame, err := scanFrame(rows)
	if err != nil {
		return nil, c.fail(op, dataerr.Driver(op, err))
	}
	return frame.Rows, nil
}

// fail logs err at a level matching its kind and counts it.
func (c *Client) fail(op string, err error, fields ...zap.Field) error {
	c.stats.failures.Add(1)
	kind := dataerr.KindOf(err)
	fields = append(fields, zap.String("op", op), zap.String("kind", kind.String()), zap.Error(err))
	switch kind {
	case dataerr.KindInvalidArgument, dataerr.KindInvalidShape, dataerr.KindValidation:
		c.logger.Warn("database operation rejected", fields...)
	default:
		c.logger.Error("database operation failed", fields...)
	}
	return err
}

func (c *Client) notify(ctx context.Context, table string, op events.Operation, rows int64) {
	if c.notifier == nil {
		return
	}
	e := events.MutationEvent{
		EventID:    uuid.New().String(),
		Table:      table,
		Operation:  op,
		Rows:       rows,
		OccurredAt: c.clock.Now(),
	}
	if err := c.notifier.Publish(ctx, e); err != nil {
		c.logger.Warn("failed to publish mutation event",
			zap.String("event_id", e.EventID),
			zap.String("table", table),
			zap.Error(err))
	}
}
