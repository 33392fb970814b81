// Package ingest keeps a long-lived connection to the machine feed and
// turns every frame into a stored record.
//
// A connection moves through Disconnected → Connecting → Authenticated →
// Receiving and back to Disconnected when the transport fails or the
// context is cancelled. Bad frames and failed writes are logged and
// skipped; only transport failures end a connection, and Run reconnects
// after those with capped exponential backoff.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/logging"
	"github.com/EarthNatchanon/Topgun2/internal/metrics"
	"github.com/EarthNatchanon/Topgun2/internal/models"
)

// State is the connection state of the client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Inserter persists one record and returns its id.
type Inserter interface {
	Insert(ctx context.Context, rec models.Record) (int64, error)
}

// Config controls the feed connection.
type Config struct {
	URL   string
	Token string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// WriteTimeout bounds one insert. Inserts run detached from shutdown
	// cancellation so a write in flight at shutdown still commits or
	// rolls back.
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Client is the ingestion unit. It is safe to read State from other
// goroutines while Run is active.
type Client struct {
	cfg     Config
	dialer  Dialer
	store   Inserter
	metrics *metrics.Metrics
	log     *slog.Logger

	state atomic.Int32

	// after is time.After; tests replace it to observe backoff.
	after func(time.Duration) <-chan time.Time
}

func NewClient(cfg Config, dialer Dialer, store Inserter, m *metrics.Metrics) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:     cfg,
		dialer:  dialer,
		store:   store,
		metrics: m,
		log:     logging.Component("ingest"),
		after:   time.After,
	}
}

// State reports the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Run connects to the feed and keeps reconnecting until ctx is cancelled.
// The delay between attempts starts at InitialBackoff, doubles after each
// failure up to MaxBackoff, and resets once a connection delivers a frame.
// Run always returns nil; a cancelled context is a normal shutdown.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.InitialBackoff

	for {
		frames, err := c.RunOnce(ctx)
		if ctx.Err() != nil {
			c.log.Info("ingestion stopped")
			return nil
		}
		if frames > 0 {
			backoff = c.cfg.InitialBackoff
		}

		c.log.Warn("feed connection lost",
			"error", err,
			"frames", frames,
			"retry_in", backoff,
		)

		select {
		case <-ctx.Done():
			c.log.Info("ingestion stopped")
			return nil
		case <-c.after(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// RunOnce drives a single connection until it fails or ctx is cancelled.
// It returns the number of frames received and either a TransportError or
// ctx.Err().
func (c *Client) RunOnce(ctx context.Context) (int, error) {
	log := c.log.With("session", uuid.NewString())

	c.setState(StateConnecting)
	defer c.setState(StateDisconnected)

	conn, err := c.dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &apperrors.TransportError{Op: "dial", Err: err}
	}
	defer conn.Close()

	// The token is the first message. The feed sends no acknowledgement;
	// a rejected token shows up as a disconnect on the first Receive.
	if err := conn.Send(ctx, []byte(c.cfg.Token)); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &apperrors.TransportError{Op: "authenticate", Err: err}
	}
	c.setState(StateAuthenticated)
	log.Info("connected to feed", "url", c.cfg.URL)

	c.metrics.FeedUp()
	c.setState(StateReceiving)

	frames := 0
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.metrics.FeedDown(false)
				return frames, ctx.Err()
			}
			c.metrics.FeedDown(true)
			return frames, &apperrors.TransportError{Op: "receive", Err: err}
		}
		frames++
		c.handleFrame(ctx, log, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, log *slog.Logger, data []byte) {
	c.metrics.FrameReceived()

	rec, err := DecodeFrame(data)
	if err != nil {
		c.metrics.DecodeError()
		log.Warn("dropping frame", "error", err, "size", len(data))
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteTimeout)
	defer cancel()

	id, err := c.store.Insert(wctx, rec)
	if err != nil {
		c.metrics.PersistError()
		log.Error("failed to store frame", "error", err)
		return
	}
	c.metrics.RecordIngested()
	log.Debug("frame stored", "id", id)
}
