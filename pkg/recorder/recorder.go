// Package recorder persists the audio of a two-party session.
//
// Each role gets its own WAV stream, written as payloads arrive. Every
// payload is also kept as a timestamped segment; on Finalize the segments
// of both roles are merged by timestamp into one combined WAV file, and the
// transcript lines collected with Note are written next to it.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/duet/pkg/audio/pcm"
	"github.com/haivivi/duet/pkg/audio/wav"
	"github.com/haivivi/duet/pkg/storage"
)

// StampLayout formats the run timestamp shared by all output names.
const StampLayout = "20060102_150405"

// Format is the audio format of every payload.
const Format = pcm.L16Mono24K

// ErrFinalized is returned by Record after Finalize.
var ErrFinalized = errors.New("recorder: finalized")

// Segment is one received audio payload.
type Segment struct {
	Time    time.Time
	Role    Role
	Payload []byte
}

// Files lists the storage paths written by Finalize.
type Files struct {
	Dir       string
	Therapist string
	Client    string
	Combined  string

	// Transcript is empty when no transcript line was noted.
	Transcript string
}

// Paths returns every written file, transcript last.
func (f *Files) Paths() []string {
	paths := []string{f.Therapist, f.Client, f.Combined}
	if f.Transcript != "" {
		paths = append(paths, f.Transcript)
	}
	return paths
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now for segment timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder is the session's audio sink. Record is safe for concurrent use;
// writes from both roles are serialized.
type Recorder struct {
	store storage.FileStore
	stamp string
	dir   string
	now   func() time.Time

	streams [len(Roles)]*wav.Writer

	mu        sync.Mutex
	segments  []Segment
	notes     []string
	finalized bool

	once  sync.Once
	files *Files
	err   error
}

// New creates the session directory session_<stamp> in store and opens one
// WAV stream per role.
func New(ctx context.Context, store storage.FileStore, stamp string, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		store: store,
		stamp: stamp,
		dir:   "session_" + stamp,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, role := range Roles {
		w, err := r.create(ctx, r.rolePath(role))
		if err != nil {
			r.closeStreams()
			return nil, fmt.Errorf("recorder: open %s stream: %w", role, err)
		}
		r.streams[role] = w
	}
	return r, nil
}

// Dir returns the session directory path within the store.
func (r *Recorder) Dir() string {
	return r.dir
}

// Record writes payload to the role's stream and, once written, adds it
// to the combined timeline. Empty payloads are ignored. A write failure is
// returned and the payload is left out of every file.
func (r *Recorder) Record(payload []byte, role Role) error {
	if len(payload) == 0 {
		return nil
	}
	if role != RoleA && role != RoleB {
		return fmt.Errorf("recorder: invalid role %d", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrFinalized
	}
	seg := Segment{Time: r.now(), Role: role, Payload: slices.Clone(payload)}
	if _, err := r.streams[role].Write(seg.Payload); err != nil {
		if errors.Is(err, wav.ErrClosed) {
			return ErrFinalized
		}
		return fmt.Errorf("recorder: write %s audio: %w", role, err)
	}
	r.segments = append(r.segments, seg)
	return nil
}

// Note appends a transcript line. Lines noted after Finalize are dropped.
func (r *Recorder) Note(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.notes = append(r.notes, line)
	}
}

// Segments returns a copy of the recorded segments in arrival order.
func (r *Recorder) Segments() []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.segments)
}

// Finalize closes the role streams and writes the combined WAV file and
// the transcript. Only the first call does any work; later calls return
// the first result.
func (r *Recorder) Finalize(ctx context.Context) (*Files, error) {
	r.once.Do(func() {
		r.files, r.err = r.finalize(ctx)
	})
	return r.files, r.err
}

func (r *Recorder) finalize(ctx context.Context) (*Files, error) {
	r.mu.Lock()
	r.finalized = true
	segments := slices.Clone(r.segments)
	notes := r.notes
	r.mu.Unlock()

	files := &Files{
		Dir:       r.dir,
		Therapist: r.rolePath(RoleA),
		Client:    r.rolePath(RoleB),
		Combined:  r.path("combined_session_" + r.stamp + ".wav"),
	}

	err := r.closeStreams()

	slices.SortStableFunc(segments, func(a, b Segment) int {
		return a.Time.Compare(b.Time)
	})
	if werr := r.writeCombined(ctx, files.Combined, segments); werr != nil {
		err = errors.Join(err, werr)
	}

	if len(notes) > 0 {
		files.Transcript = r.path("transcript_" + r.stamp + ".txt")
		if werr := r.writeTranscript(ctx, files.Transcript, notes); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	return files, err
}

func (r *Recorder) writeCombined(ctx context.Context, name string, segments []Segment) error {
	w, err := r.create(ctx, name)
	if err != nil {
		return fmt.Errorf("recorder: create combined: %w", err)
	}
	for _, seg := range segments {
		if _, err := w.Write(seg.Payload); err != nil {
			w.Close()
			return fmt.Errorf("recorder: write combined: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("recorder: close combined: %w", err)
	}
	return nil
}

func (r *Recorder) writeTranscript(ctx context.Context, name string, notes []string) error {
	w, err := r.store.Write(ctx, name)
	if err != nil {
		return fmt.Errorf("recorder: create transcript: %w", err)
	}
	if _, err := io.WriteString(w, strings.Join(notes, "\n")+"\n"); err != nil {
		w.Close()
		return fmt.Errorf("recorder: write transcript: %w", err)
	}
	return w.Close()
}

func (r *Recorder) closeStreams() error {
	var errs []error
	for _, role := range Roles {
		if w := r.streams[role]; w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, fmt.Errorf("recorder: close %s stream: %w", role, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) create(ctx context.Context, name string) (*wav.Writer, error) {
	f, err := r.store.Write(ctx, name)
	if err != nil {
		return nil, err
	}
	w, err := wav.NewWriter(f, Format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (r *Recorder) rolePath(role Role) string {
	return r.path(role.String() + "_" + r.stamp + ".wav")
}

func (r *Recorder) path(name string) string {
	return path.Join(r.dir, name)
}

