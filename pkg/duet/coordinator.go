package duet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/duet/pkg/metrics"
	"github.com/haivivi/duet/pkg/recorder"
)

const (
	DefaultTurnTimeout    = 2 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
	DefaultSettleDelay    = time.Second
)

// Config configures a session.
type Config struct {
	Therapist Persona
	Client    Persona

	// Model is the realtime model; empty uses the client default.
	Model string

	// TurnTimeout bounds each turn. Zero waits forever.
	TurnTimeout time.Duration
	// ConnectTimeout bounds each connection attempt and each wait for the
	// persona to be accepted. Zero means no bound.
	ConnectTimeout time.Duration
	// SettleDelay separates consecutive turns.
	SettleDelay time.Duration
	// MaxExchanges stops the session after that many exchanges (a
	// therapist turn answered by the client). Zero means no limit.
	MaxExchanges int
}

// DefaultConfig returns the default personas and timings.
func DefaultConfig() Config {
	return Config{
		Therapist:      DefaultPersona(RoleA),
		Client:         DefaultPersona(RoleB),
		TurnTimeout:    DefaultTurnTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		SettleDelay:    DefaultSettleDelay,
	}
}

// Validate checks voices and limits.
func (c Config) Validate() error {
	if err := c.Therapist.Validate(); err != nil {
		return fmt.Errorf("therapist: %w", err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if c.TurnTimeout < 0 || c.ConnectTimeout < 0 || c.SettleDelay < 0 {
		return errors.New("duet: durations must not be negative")
	}
	if c.MaxExchanges < 0 {
		return errors.New("duet: max exchanges must not be negative")
	}
	return nil
}

func (c Config) persona(role Role) Persona {
	if role == RoleA {
		return c.Therapist
	}
	return c.Client
}

// Recorder is the audio sink the coordinator writes through and finalizes.
// *recorder.Recorder implements it.
type Recorder interface {
	Sink
	Note(line string)
	Finalize(ctx context.Context) (*recorder.Files, error)
}

// TurnInfo describes a completed turn.
type TurnInfo struct {
	Role Role
	// Turn is the role's 1-based turn number.
	Turn int
	// Exchange is the 1-based exchange the turn belongs to. The opening
	// turn belongs to exchange 1.
	Exchange int
	Audio    time.Duration
	Took     time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMetrics records session, turn and frame metrics.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// WithClock replaces time.Now for transcript lines and the summary.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithTurnHook calls fn after every completed turn, from the goroutine
// running Run.
func WithTurnHook(fn func(TurnInfo)) CoordinatorOption {
	return func(c *Coordinator) { c.onTurn = fn }
}

// WithSessionID sets the summary ID; the default is a random UUID.
func WithSessionID(id string) CoordinatorOption {
	return func(c *Coordinator) { c.id = id }
}

// Coordinator drives one session: it connects both participants, lets the
// therapist open, then alternates turns until one fails, yields no audio,
// the exchange limit is reached or the context is cancelled.
type Coordinator struct {
	cfg    Config
	dialer Dialer
	rec    Recorder

	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	onTurn  func(TurnInfo)
	id      string

	state     atomic.Int32
	exchanges atomic.Int64
}

// NewCoordinator creates a coordinator. It does not connect.
func NewCoordinator(dialer Dialer, rec Recorder, cfg Config, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		dialer: dialer,
		rec:    rec,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	return c
}

// State returns the current phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Exchanges returns the number of completed exchanges.
func (c *Coordinator) Exchanges() int {
	return int(c.exchanges.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.log.Debug("session state", "state", s.String())
}

// Run executes the session. The recorder is finalized before Run returns,
// whatever the outcome.
//
// The returned error is non-nil only for connect or configure failures and
// for recorder failures. Turn failures end the session gracefully and are
// reported in the summary.
func (c *Coordinator) Run(ctx context.Context) (sum *Summary, err error) {
	sum = &Summary{ID: c.id, Started: c.now()}
	c.metrics.RecordSessionStart()

	var (
		parts       []*Participant
		group       *errgroup.Group
		cancelLoops context.CancelFunc = func() {}
	)
	defer func() {
		c.setState(StateClosed)
		cancelLoops()
		for _, p := range parts {
			p.Close()
		}
		if group != nil {
			if lerr := group.Wait(); lerr != nil {
				sum.LoopErr = lerr
				var tce *TransportClosedError
				if !errors.As(lerr, &tce) {
					sum.EndReason = EndRecorderFailed
					err = errors.Join(err, lerr)
				}
			}
		}
		for _, p := range parts {
			sum.Stats[p.Role()] = p.Conn().Stats()
		}

		files, ferr := c.rec.Finalize(context.WithoutCancel(ctx))
		sum.Files = files
		if ferr != nil {
			sum.EndReason = EndRecorderFailed
			err = errors.Join(err, ferr)
		}
		sum.Ended = c.now()
		c.metrics.RecordSessionEnd(string(sum.EndReason), sum.Duration())
		c.log.Info("session closed",
			"id", sum.ID, "reason", sum.EndReason, "exchanges", sum.Exchanges, "turns", sum.Turns)
	}()

	c.setState(StateConnecting)
	for _, role := range recorder.Roles {
		p := NewParticipant(role, c.cfg.persona(role), c.dialer, ConnectionConfig{
			Model:       c.cfg.Model,
			Sink:        c.rec,
			TurnTimeout: c.cfg.TurnTimeout,
			Metrics:     c.metrics,
			Logger:      c.log,
		})
		if err := c.connect(ctx, p); err != nil {
			sum.EndReason = EndConnectFailed
			return sum, err
		}
		parts = append(parts, p)
		if err := c.configure(ctx, p); err != nil {
			sum.EndReason = EndConfigureFailed
			return sum, err
		}
		c.log.Info("participant ready", "role", role.String(), "voice", p.Persona().Voice)
	}
	therapist, client := parts[0], parts[1]

	loopCtx, cancel := context.WithCancel(ctx)
	cancelLoops = cancel
	group, loopCtx = errgroup.WithContext(loopCtx)
	for _, p := range parts {
		conn := p.Conn()
		group.Go(func() error { return conn.ReceiveLoop(loopCtx) })
	}

	c.setState(StateOpening)
	audio, terr := c.turn(ctx, sum, therapist, nil)
	if terr != nil {
		c.endTurn(ctx, sum, terr)
		return sum, nil
	}

	c.setState(StateAlternating)
	for {
		if serr := c.settle(ctx); serr != nil {
			c.endTurn(ctx, sum, serr)
			return sum, nil
		}
		if audio, terr = c.turn(ctx, sum, client, audio); terr != nil {
			c.endTurn(ctx, sum, terr)
			return sum, nil
		}
		sum.Exchanges++
		c.exchanges.Store(int64(sum.Exchanges))
		if c.cfg.MaxExchanges > 0 && sum.Exchanges >= c.cfg.MaxExchanges {
			sum.EndReason = EndExchangeLimit
			return sum, nil
		}

		if serr := c.settle(ctx); serr != nil {
			c.endTurn(ctx, sum, serr)
			return sum, nil
		}
		if audio, terr = c.turn(ctx, sum, therapist, audio); terr != nil {
			c.endTurn(ctx, sum, terr)
			return sum, nil
		}
	}
}

func (c *Coordinator) connect(ctx context.Context, p *Participant) error {
	ctx, cancel := c.setupContext(ctx)
	defer cancel()
	return p.Connect(ctx)
}

func (c *Coordinator) configure(ctx context.Context, p *Participant) error {
	ctx, cancel := c.setupContext(ctx)
	defer cancel()
	return p.Initialize(ctx)
}

// setupContext bounds one connect or configure step by ConnectTimeout.
func (c *Coordinator) setupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.ConnectTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	}
	return context.WithCancel(ctx)
}

// turn runs one turn and notes it in the transcript.
func (c *Coordinator) turn(ctx context.Context, sum *Summary, p *Participant, input []byte) ([]byte, error) {
	role := p.Role().String()
	start := c.now()
	audio, err := p.TakeTurn(ctx, input)
	took := c.now().Sub(start)
	if err != nil {
		outcome := "error"
		var te *TurnError
		if errors.As(err, &te) {
			outcome = te.Reason.String()
		}
		c.metrics.RecordTurn(role, outcome, took)
		return nil, err
	}
	c.metrics.RecordTurn(role, "ok", took)
	sum.Turns++

	info := TurnInfo{
		Role:     p.Role(),
		Turn:     p.Turns(),
		Exchange: sum.Exchanges + 1,
		Audio:    recorder.Format.Duration(int64(len(audio))),
		Took:     took,
	}
	c.rec.Note(fmt.Sprintf("[%s] %s turn %d complete (%.1fs of audio)",
		c.now().Format("15:04:05"), info.Role.Title(), info.Turn, info.Audio.Seconds()))
	c.log.Info("turn complete", "role", role, "turn", info.Turn, "audio", info.Audio, "took", took)
	if c.onTurn != nil {
		c.onTurn(info)
	}
	return audio, nil
}

func (c *Coordinator) endTurn(ctx context.Context, sum *Summary, err error) {
	sum.TurnErr = err
	switch {
	case errors.Is(err, ErrNoAudio):
		sum.EndReason = EndNoAudio
		c.log.Info("turn produced no audio, ending session")
	case ctx.Err() != nil:
		sum.EndReason = EndCancelled
		c.log.Info("session cancelled")
	default:
		sum.EndReason = EndTurnFailed
		c.log.Warn("turn failed, ending session", "error", err)
	}
}

func (c *Coordinator) settle(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
