package duet

import (
	"context"
	"errors"
	"sync"
)

// Participant binds a role and persona to its connection.
type Participant struct {
	role    Role
	persona Persona
	dialer  Dialer
	cfg     ConnectionConfig

	conn *Connection

	mu        sync.Mutex
	lastAudio []byte
	turns     int
}

// NewParticipant creates an unconnected participant. cfg.Role is set to role.
func NewParticipant(role Role, persona Persona, dialer Dialer, cfg ConnectionConfig) *Participant {
	cfg.Role = role
	return &Participant{role: role, persona: persona, dialer: dialer, cfg: cfg}
}

func (p *Participant) Role() Role        { return p.role }
func (p *Participant) Persona() Persona  { return p.persona }
func (p *Participant) Conn() *Connection { return p.conn }

// Connect opens the participant's connection.
func (p *Participant) Connect(ctx context.Context) error {
	conn, err := Dial(ctx, p.dialer, p.cfg)
	if err != nil {
		return err
	}
	p.conn = conn
	return nil
}

// Initialize sends the persona to the endpoint and waits for it to be
// accepted.
func (p *Participant) Initialize(ctx context.Context) error {
	if p.conn == nil {
		return &ConfigureError{Role: p.role, Err: errors.New("not connected")}
	}
	return p.conn.Configure(ctx, p.persona)
}

// TakeTurn runs one turn on the participant's connection.
func (p *Participant) TakeTurn(ctx context.Context, input []byte) ([]byte, error) {
	if p.conn == nil {
		return nil, ErrNotConfigured
	}
	audio, err := p.conn.TakeTurn(ctx, input)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.lastAudio = audio
	p.turns++
	p.mu.Unlock()
	return audio, nil
}

// LastAudio returns the audio of the last completed turn.
func (p *Participant) LastAudio() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAudio
}

// Turns returns the number of completed turns.
func (p *Participant) Turns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turns
}

// Close closes the connection, if any.
func (p *Participant) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
