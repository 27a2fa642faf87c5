package duet

import (
	"context"
	"errors"
	"iter"
	"sync"

	openairealtime "github.com/haivivi/duet/pkg/openai-realtime"
)

// frame is either a *openairealtime.ServerEvent or an error.
type frame any

func audioDelta(payload string) frame {
	return &openairealtime.ServerEvent{Type: openairealtime.EventTypeResponseAudioDelta, Audio: []byte(payload)}
}

func responseDone() frame {
	return &openairealtime.ServerEvent{
		Type:     openairealtime.EventTypeResponseDone,
		Response: &openairealtime.ResponseResource{Status: openairealtime.ResponseStatusCompleted},
	}
}

func sessionUpdated() frame {
	return &openairealtime.ServerEvent{Type: openairealtime.EventTypeSessionUpdated}
}

func remoteError(msg string) frame {
	return &openairealtime.ServerEvent{Type: openairealtime.EventTypeError, Error: &openairealtime.Error{Message: msg}}
}

// audioTurn answers a response request with one audio chunk.
func audioTurn(payload string) []frame { return []frame{audioDelta(payload), responseDone()} }

// silentTurn answers a response request without audio.
func silentTurn() []frame { return []frame{responseDone()} }

// fakeSession is a scripted openairealtime.Session. On the n-th
// CreateResponse (0-based) it emits script[n]; beyond the script it emits
// nothing, leaving the turn pending. UpdateSession is answered with
// updateReply, or session.updated when updateReply is nil.
type fakeSession struct {
	script      [][]frame
	respond     func(n int) []frame
	updateReply []frame

	updateErr   error
	responseErr error

	frames    chan frame
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	updates   []*openairealtime.SessionConfig
	inputs    [][]byte
	responses int
}

func newFakeSession(script ...[]frame) *fakeSession {
	return &fakeSession{
		script: script,
		frames: make(chan frame, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeSession) UpdateSession(cfg *openairealtime.SessionConfig) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	f.updates = append(f.updates, cfg)
	f.mu.Unlock()

	if f.updateReply == nil {
		f.push(sessionUpdated())
	} else {
		f.push(f.updateReply...)
	}
	return nil
}

func (f *fakeSession) AddUserAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, audio)
	return nil
}

func (f *fakeSession) CreateResponse(*openairealtime.ResponseCreateOptions) error {
	if f.responseErr != nil {
		return f.responseErr
	}
	f.mu.Lock()
	n := f.responses
	f.responses++
	f.mu.Unlock()

	var out []frame
	switch {
	case f.respond != nil:
		out = f.respond(n)
	case n < len(f.script):
		out = f.script[n]
	}
	f.push(out...)
	return nil
}

// push delivers frames as if received from the wire.
func (f *fakeSession) push(frames ...frame) {
	for _, fr := range frames {
		f.frames <- fr
	}
}

func (f *fakeSession) Events() iter.Seq2[*openairealtime.ServerEvent, error] {
	return func(yield func(*openairealtime.ServerEvent, error) bool) {
		for {
			select {
			case <-f.closed:
				return
			case fr := <-f.frames:
				switch v := fr.(type) {
				case *openairealtime.ServerEvent:
					if !yield(v, nil) {
						return
					}
				case error:
					if !yield(nil, v) {
						return
					}
					var de *openairealtime.DecodeError
					if !errors.As(v, &de) {
						return
					}
				}
			}
		}
	}
}

func (f *fakeSession) SessionID() string { return "sess_fake" }

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSession) responseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses
}

func (f *fakeSession) receivedInputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inputs))
	for i, in := range f.inputs {
		out[i] = string(in)
	}
	return out
}

// fakeDialer hands out sessions in call order; errs[i] fails call i.
type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	errs     []error
	models   []string
	calls    int
}

func (d *fakeDialer) Connect(_ context.Context, cfg *openairealtime.ConnectConfig) (openairealtime.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	d.models = append(d.models, cfg.Model)
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	return d.sessions[i], nil
}

// memorySink records payloads per role in arrival order.
type memorySink struct {
	mu  sync.Mutex
	err error
	got map[Role][]string
}

func (s *memorySink) Record(payload []byte, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.got == nil {
		s.got = make(map[Role][]string)
	}
	s.got[role] = append(s.got[role], string(payload))
	return nil
}
