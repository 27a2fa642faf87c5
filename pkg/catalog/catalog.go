// Package catalog keeps a history of finished sessions in a kv.Store.
// Records are msgpack-encoded under the key session:<id>.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/duet/pkg/duet"
	"github.com/haivivi/duet/pkg/kv"
)

// ErrNotFound is returned when no record matches an ID.
var ErrNotFound = errors.New("catalog: session not found")

// ErrAmbiguous is returned when an ID prefix matches several records.
var ErrAmbiguous = errors.New("catalog: ambiguous session id")

const keyPrefix = "session"

// Record is the persisted form of a finished session.
type Record struct {
	ID string `json:"id" msgpack:"id"`

	// Started and Ended are Unix milliseconds.
	Started int64 `json:"started" msgpack:"started"`
	Ended   int64 `json:"ended" msgpack:"ended"`

	Model          string `json:"model,omitempty" msgpack:"model,omitempty"`
	TherapistVoice string `json:"therapist_voice" msgpack:"therapist_voice"`
	ClientVoice    string `json:"client_voice" msgpack:"client_voice"`

	Exchanges int    `json:"exchanges" msgpack:"exchanges"`
	Turns     int    `json:"turns" msgpack:"turns"`
	EndReason string `json:"end_reason" msgpack:"end_reason"`
	TurnError string `json:"turn_error,omitempty" msgpack:"turn_error,omitempty"`
	LoopError string `json:"loop_error,omitempty" msgpack:"loop_error,omitempty"`

	// Dir is the absolute session directory; Files are relative to its parent.
	Dir   string   `json:"dir" msgpack:"dir"`
	Files []string `json:"files,omitempty" msgpack:"files,omitempty"`

	// Archive is where the session was mirrored, if anywhere.
	Archive string `json:"archive,omitempty" msgpack:"archive,omitempty"`
}

// FromSummary builds a record from a finished session.
func FromSummary(sum *duet.Summary, cfg duet.Config, dir string) *Record {
	r := &Record{
		ID:             sum.ID,
		Started:        sum.Started.UnixMilli(),
		Ended:          sum.Ended.UnixMilli(),
		Model:          cfg.Model,
		TherapistVoice: cfg.Therapist.Voice,
		ClientVoice:    cfg.Client.Voice,
		Exchanges:      sum.Exchanges,
		Turns:          sum.Turns,
		EndReason:      string(sum.EndReason),
		Dir:            dir,
	}
	if sum.TurnErr != nil {
		r.TurnError = sum.TurnErr.Error()
	}
	if sum.LoopErr != nil {
		r.LoopError = sum.LoopErr.Error()
	}
	if sum.Files != nil {
		r.Files = sum.Files.Paths()
	}
	return r
}

// Catalog stores session records.
type Catalog struct {
	store kv.Store
}

// New creates a catalog over store. The catalog does not own the store.
func New(store kv.Store) *Catalog {
	return &Catalog{store: store}
}

// Put stores or replaces a record.
func (c *Catalog) Put(ctx context.Context, r *Record) error {
	if r.ID == "" {
		return errors.New("catalog: record has no id")
	}
	data, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("catalog: encode %s: %w", r.ID, err)
	}
	return c.store.Set(ctx, kv.Key{keyPrefix, r.ID}, data)
}

// Get returns the record with the given ID. A unique ID prefix is accepted.
func (c *Catalog) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	data, err := c.store.Get(ctx, kv.Key{keyPrefix, id})
	if err == nil {
		return decode(data)
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	var match *Record
	for entry, err := range c.store.List(ctx, kv.Key{keyPrefix}) {
		if err != nil {
			return nil, err
		}
		if len(entry.Key) < 2 || !strings.HasPrefix(entry.Key[1], id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %q", ErrAmbiguous, id)
		}
		if match, err = decode(entry.Value); err != nil {
			return nil, err
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return match, nil
}

// List returns all records, newest first.
func (c *Catalog) List(ctx context.Context) ([]*Record, error) {
	var records []*Record
	for entry, err := range c.store.List(ctx, kv.Key{keyPrefix}) {
		if err != nil {
			return nil, err
		}
		r, err := decode(entry.Value)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	slices.SortStableFunc(records, func(a, b *Record) int {
		return cmp.Compare(b.Started, a.Started)
	})
	return records, nil
}

// Delete removes the record with the given ID.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	r, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, kv.Key{keyPrefix, r.ID})
}

func decode(data []byte) (*Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return &r, nil
}
