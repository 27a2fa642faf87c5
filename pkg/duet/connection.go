package duet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/duet/pkg/metrics"
	openairealtime "github.com/haivivi/duet/pkg/openai-realtime"
)

// Dialer opens realtime sessions. *openairealtime.Client implements it.
type Dialer interface {
	Connect(ctx context.Context, config *openairealtime.ConnectConfig) (openairealtime.Session, error)
}

// Sink receives every decoded audio payload. *recorder.Recorder
// implements it.
type Sink interface {
	Record(payload []byte, role Role) error
}

// ConnectionConfig configures a Connection.
type ConnectionConfig struct {
	Role  Role
	Model string
	Sink  Sink

	// TurnTimeout bounds the wait for response.done. Zero waits forever.
	TurnTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// ConnStats counts what a receive loop has seen.
type ConnStats struct {
	Frames       int64
	AudioBytes   int64
	RemoteErrors int64
	DecodeErrors int64
}

// Connection is one participant's duplex realtime session. At most one
// turn is in flight at a time.
type Connection struct {
	role        Role
	session     openairealtime.Session
	sink        Sink
	turnTimeout time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger

	configured atomic.Bool
	inFlight   atomic.Bool
	turns      atomic.Int64

	// done is the completion signal: reset by draining, set by a
	// non-blocking send.
	done chan struct{}

	mu         sync.Mutex
	turnAudio  []byte
	lastStatus string

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error // cause when the transport failed
	sessErr   error

	frames       atomic.Int64
	audioBytes   atomic.Int64
	remoteErrors atomic.Int64
	decodeErrors atomic.Int64
}

// Dial opens the connection for cfg.Role. Failure is a *ConnectError.
func Dial(ctx context.Context, d Dialer, cfg ConnectionConfig) (*Connection, error) {
	session, err := d.Connect(ctx, &openairealtime.ConnectConfig{Model: cfg.Model})
	if err != nil {
		return nil, &ConnectError{Role: cfg.Role, Err: err}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		role:        cfg.Role,
		session:     session,
		sink:        cfg.Sink,
		turnTimeout: cfg.TurnTimeout,
		metrics:     cfg.Metrics,
		log:         logger.With("role", cfg.Role.String()),
		done:        make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}, nil
}

// Role returns the role the connection speaks for.
func (c *Connection) Role() Role {
	return c.role
}

// SessionID returns the endpoint's session ID once known.
func (c *Connection) SessionID() string {
	return c.session.SessionID()
}

// Configure sends the persona as a session.update frame with server VAD
// disabled and waits until the endpoint acknowledges it with
// session.updated. A send failure, an error frame in reply, a closed
// transport or ctx expiring first is a *ConfigureError. Configure must
// return before ReceiveLoop starts.
func (c *Connection) Configure(ctx context.Context, p Persona) error {
	if err := c.session.UpdateSession(p.sessionConfig()); err != nil {
		return &ConfigureError{Role: c.role, Err: err}
	}

	ack := make(chan error, 1)
	go func() { ack <- c.awaitUpdated() }()

	var err error
	select {
	case err = <-ack:
	case <-ctx.Done():
		// Closing ends the event iteration in awaitUpdated.
		c.Close()
		<-ack
		err = ctx.Err()
	}
	if err != nil {
		return &ConfigureError{Role: c.role, Err: err}
	}
	c.configured.Store(true)
	c.log.Debug("configured", "voice", p.Voice)
	return nil
}

// awaitUpdated reads frames until session.updated or an error frame.
func (c *Connection) awaitUpdated() error {
	for event, err := range c.session.Events() {
		if err != nil {
			var de *openairealtime.DecodeError
			if errors.As(err, &de) {
				c.decodeErrors.Add(1)
				c.log.Warn("dropping frame", "error", &FrameDecodeError{Role: c.role, Err: err})
				continue
			}
			return &TransportClosedError{Role: c.role, Err: err}
		}
		if err := c.handle(event); err != nil {
			return err
		}
		switch event.Type {
		case openairealtime.EventTypeSessionUpdated:
			return nil
		case openairealtime.EventTypeError:
			apiErr := event.Error
			if apiErr == nil {
				apiErr = &openairealtime.Error{Message: "unspecified error"}
			}
			return &RemoteError{Role: c.role, Err: apiErr}
		}
	}
	return ErrConnectionClosed
}

// ReceiveLoop consumes inbound frames until the connection closes.
//
// It returns nil when ctx is cancelled or Close is called, a
// *TransportClosedError when the transport fails, and the sink's error
// when recording fails. Decode failures and remote error frames are
// logged and do not end the loop.
func (c *Connection) ReceiveLoop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for event, err := range c.session.Events() {
		if err != nil {
			var de *openairealtime.DecodeError
			if errors.As(err, &de) {
				c.decodeErrors.Add(1)
				c.metrics.RecordError(c.role.String(), "decode")
				c.log.Warn("dropping frame", "error", &FrameDecodeError{Role: c.role, Err: err})
				continue
			}
			if c.isClosed() {
				return nil
			}
			terr := &TransportClosedError{Role: c.role, Err: err}
			c.metrics.RecordError(c.role.String(), "transport")
			c.shutdown(terr)
			return terr
		}
		if err := c.handle(event); err != nil {
			c.shutdown(err)
			return err
		}
	}
	c.shutdown(nil)
	return nil
}

func (c *Connection) handle(event *openairealtime.ServerEvent) error {
	c.frames.Add(1)
	c.metrics.RecordFrame(c.role.String(), event.Type)

	switch event.Type {
	case openairealtime.EventTypeError:
		apiErr := event.Error
		if apiErr == nil {
			apiErr = &openairealtime.Error{Message: "unspecified error"}
		}
		c.remoteErrors.Add(1)
		c.metrics.RecordError(c.role.String(), "remote")
		c.log.Warn("remote error", "error", &RemoteError{Role: c.role, Err: apiErr})

	case openairealtime.EventTypeResponseAudioDelta:
		if len(event.Audio) == 0 {
			return nil
		}
		if err := c.sink.Record(event.Audio, c.role); err != nil {
			return err
		}
		c.audioBytes.Add(int64(len(event.Audio)))
		c.metrics.RecordAudio(c.role.String(), "out", len(event.Audio))
		c.mu.Lock()
		c.turnAudio = append(c.turnAudio, event.Audio...)
		c.mu.Unlock()

	case openairealtime.EventTypeResponseDone:
		status := ""
		if event.Response != nil {
			status = event.Response.Status
			if u := event.Response.Usage; u != nil {
				c.log.Debug("usage", "input_tokens", u.InputTokens, "output_tokens", u.OutputTokens)
			}
		}
		switch status {
		case openairealtime.ResponseStatusFailed, openairealtime.ResponseStatusCancelled, openairealtime.ResponseStatusIncomplete:
			c.log.Warn("response ended", "status", status)
		}
		c.mu.Lock()
		c.lastStatus = status
		c.mu.Unlock()
		select {
		case c.done <- struct{}{}:
		default:
		}

	case openairealtime.EventTypeSessionCreated:
		if event.Session != nil {
			c.log.Debug("session created", "id", event.Session.ID)
		}

	default:
		c.log.Debug("ignoring frame", "type", event.Type)
	}
	return nil
}

// TakeTurn asks the endpoint for one response, optionally preceded by the
// other participant's audio, and waits for it to complete. It returns every
// audio delta of the response concatenated in arrival order, not just the
// last one, or a *TurnError.
func (c *Connection) TakeTurn(ctx context.Context, input []byte) ([]byte, error) {
	if !c.configured.Load() {
		return nil, ErrNotConfigured
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer c.inFlight.Store(false)

	turn := int(c.turns.Add(1))
	fail := func(reason TurnReason, err error) ([]byte, error) {
		return nil, &TurnError{Role: c.role, Turn: turn, Reason: reason, Err: err}
	}

	if c.isClosed() {
		return fail(ReasonConnectionClosed, c.closeCause())
	}

	select {
	case <-c.done:
	default:
	}
	c.mu.Lock()
	c.turnAudio = nil
	c.lastStatus = ""
	c.mu.Unlock()

	if len(input) > 0 {
		if err := c.session.AddUserAudio(input); err != nil {
			return fail(ReasonSendFailed, err)
		}
		c.metrics.RecordAudio(c.role.String(), "in", len(input))
	}
	err := c.session.CreateResponse(&openairealtime.ResponseCreateOptions{
		Modalities: []string{openairealtime.ModalityText, openairealtime.ModalityAudio},
	})
	if err != nil {
		return fail(ReasonSendFailed, err)
	}

	var timeout <-chan time.Time
	if c.turnTimeout > 0 {
		timer := time.NewTimer(c.turnTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.done:
	case <-c.closed:
		// A response that completed just before the close still counts.
		select {
		case <-c.done:
		default:
			return fail(ReasonConnectionClosed, c.closeCause())
		}
	case <-ctx.Done():
		return fail(ReasonCancelled, ctx.Err())
	case <-timeout:
		return fail(ReasonTimeout, ErrTurnTimeout)
	}

	c.mu.Lock()
	audio, status := c.turnAudio, c.lastStatus
	c.turnAudio = nil
	c.mu.Unlock()
	c.log.Debug("turn complete", "turn", turn, "status", status, "bytes", len(audio))
	if len(audio) == 0 {
		return fail(ReasonNoAudio, ErrNoAudio)
	}
	return audio, nil
}

// Stats returns the receive loop counters.
func (c *Connection) Stats() ConnStats {
	return ConnStats{
		Frames:       c.frames.Load(),
		AudioBytes:   c.audioBytes.Load(),
		RemoteErrors: c.remoteErrors.Load(),
		DecodeErrors: c.decodeErrors.Load(),
	}
}

// Close closes the connection and wakes a pending TakeTurn.
func (c *Connection) Close() error {
	c.shutdown(nil)
	return c.sessErr
}

// Done is closed once the connection has closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.closed)
		c.sessErr = c.session.Close()
	})
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Connection) closeCause() error {
	<-c.closed
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrConnectionClosed
}
