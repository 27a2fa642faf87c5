package duet

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/duet/pkg/audio/wav"
	"github.com/haivivi/duet/pkg/recorder"
	"github.com/haivivi/duet/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stamp = "20250101_120000"

type harness struct {
	store     *storage.Memory
	rec       *recorder.Recorder
	dialer    *fakeDialer
	therapist *fakeSession
	client    *fakeSession
	turns     []TurnInfo
}

func newHarness(t *testing.T, therapist, client *fakeSession) *harness {
	t.Helper()
	store := storage.NewMemory()
	rec, err := recorder.New(context.Background(), store, stamp)
	require.NoError(t, err)
	return &harness{
		store:     store,
		rec:       rec,
		dialer:    &fakeDialer{sessions: []*fakeSession{therapist, client}},
		therapist: therapist,
		client:    client,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.TurnTimeout = 5 * time.Second
	return cfg
}

func (h *harness) run(t *testing.T, ctx context.Context, cfg Config) (*Coordinator, *Summary, error) {
	t.Helper()
	c := NewCoordinator(h.dialer, h.rec, cfg,
		WithSessionID("test-session"),
		WithTurnHook(func(info TurnInfo) { h.turns = append(h.turns, info) }),
	)
	assert.Equal(t, StateInit, c.State())
	sum, err := c.Run(ctx)
	assert.Equal(t, StateClosed, c.State())
	require.NotNil(t, sum)
	return c, sum, err
}

func (h *harness) wavData(t *testing.T, path string) string {
	t.Helper()
	r, err := h.store.Read(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	_, data, err := wav.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func (h *harness) transcript(t *testing.T, path string) []string {
	t.Helper()
	r, err := h.store.Read(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestSessionEndsOnSilentTurn(t *testing.T) {
	therapist := newFakeSession(audioTurn("a1"), silentTurn())
	client := newFakeSession(audioTurn("b1"))
	h := newHarness(t, therapist, client)

	c, sum, err := h.run(t, context.Background(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, "test-session", sum.ID)
	assert.Equal(t, EndNoAudio, sum.EndReason)
	assert.ErrorIs(t, sum.TurnErr, ErrNoAudio)
	assert.Equal(t, 1, sum.Exchanges)
	assert.Equal(t, 1, c.Exchanges())
	assert.Equal(t, 2, sum.Turns)
	assert.NoError(t, sum.LoopErr)

	// Each participant hears the other's last turn.
	assert.Equal(t, []string{"a1"}, client.receivedInputs())
	assert.Equal(t, []string{"b1"}, therapist.receivedInputs())
	assert.True(t, therapist.isClosed())
	assert.True(t, client.isClosed())

	require.NotNil(t, sum.Files)
	assert.Equal(t, "a1b1", h.wavData(t, sum.Files.Combined))
	assert.Equal(t, "a1", h.wavData(t, sum.Files.Therapist))
	assert.Equal(t, "b1", h.wavData(t, sum.Files.Client))

	lines := h.transcript(t, sum.Files.Transcript)
	require.Len(t, lines, 2)
	assert.Regexp(t, `^\[\d\d:\d\d:\d\d\] Therapist turn 1 complete \(0\.0s of audio\)$`, lines[0])
	assert.Regexp(t, `^\[\d\d:\d\d:\d\d\] Client turn 1 complete \(0\.0s of audio\)$`, lines[1])

	require.Len(t, h.turns, 2)
	assert.Equal(t, RoleA, h.turns[0].Role)
	assert.Equal(t, 1, h.turns[0].Exchange)
	assert.Equal(t, RoleB, h.turns[1].Role)
}

func TestConnectFailureFinalizesEmptyOutput(t *testing.T) {
	therapist := newFakeSession(audioTurn("a1"))
	h := newHarness(t, therapist, nil)
	h.dialer.errs = []error{nil, errors.New("handshake rejected")}

	_, sum, err := h.run(t, context.Background(), testConfig())
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RoleB, ce.Role)

	assert.Equal(t, EndConnectFailed, sum.EndReason)
	assert.Zero(t, sum.Turns)
	assert.Zero(t, therapist.responseCount())
	assert.True(t, therapist.isClosed())

	require.NotNil(t, sum.Files)
	assert.Empty(t, sum.Files.Transcript)
	assert.Empty(t, h.wavData(t, sum.Files.Combined))
	for _, p := range h.store.Paths() {
		assert.NotContains(t, p, "transcript")
	}
}

func TestConfigureFailureAborts(t *testing.T) {
	therapist := newFakeSession()
	therapist.updateErr = errors.New("invalid voice")
	h := newHarness(t, therapist, newFakeSession())

	_, sum, err := h.run(t, context.Background(), testConfig())
	var ce *ConfigureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RoleA, ce.Role)
	assert.Equal(t, EndConfigureFailed, sum.EndReason)
	assert.Equal(t, 1, h.dialer.calls, "client is not dialed after therapist fails")
}

func TestRejectedPersonaAborts(t *testing.T) {
	therapist := newFakeSession(audioTurn("a1"))
	therapist.updateReply = []frame{remoteError("Invalid value: 'verse'"), sessionUpdated()}
	client := newFakeSession(audioTurn("b1"))
	h := newHarness(t, therapist, client)

	_, sum, err := h.run(t, context.Background(), testConfig())
	var ce *ConfigureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RoleA, ce.Role)
	var re *RemoteError
	assert.ErrorAs(t, err, &re)

	assert.Equal(t, EndConfigureFailed, sum.EndReason)
	assert.Zero(t, sum.Turns)
	assert.Zero(t, therapist.responseCount())
	assert.Equal(t, 1, h.dialer.calls, "client is not dialed after therapist is rejected")
	assert.True(t, therapist.isClosed())
	require.NotNil(t, sum.Files)
	assert.Empty(t, sum.Files.Transcript)
}

func TestConfigureAckTimeout(t *testing.T) {
	therapist := newFakeSession()
	therapist.updateReply = []frame{}
	h := newHarness(t, therapist, newFakeSession())

	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	_, sum, err := h.run(t, context.Background(), cfg)
	var ce *ConfigureError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, EndConfigureFailed, sum.EndReason)
}

func TestSilentOpeningStopsSession(t *testing.T) {
	therapist := newFakeSession(silentTurn())
	client := newFakeSession(audioTurn("b1"))
	h := newHarness(t, therapist, client)

	_, sum, err := h.run(t, context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, EndNoAudio, sum.EndReason)
	assert.Zero(t, client.responseCount())
	assert.Zero(t, sum.Turns)
	assert.Empty(t, sum.Files.Transcript)
}

func TestRemoteErrorDuringOpening(t *testing.T) {
	therapist := newFakeSession(
		[]frame{audioDelta("a1"), remoteError("transient"), responseDone()},
		silentTurn(),
	)
	client := newFakeSession(audioTurn("b1"))
	h := newHarness(t, therapist, client)

	_, sum, err := h.run(t, context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Turns)
	assert.Equal(t, int64(1), sum.Stats[RoleA].RemoteErrors)
}

func TestMaxExchanges(t *testing.T) {
	therapist := newFakeSession()
	therapist.respond = func(n int) []frame { return audioTurn("a") }
	client := newFakeSession()
	client.respond = func(n int) []frame { return audioTurn("b") }
	h := newHarness(t, therapist, client)

	cfg := testConfig()
	cfg.MaxExchanges = 3
	_, sum, err := h.run(t, context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, EndExchangeLimit, sum.EndReason)
	assert.Equal(t, 3, sum.Exchanges)
	assert.Equal(t, 6, sum.Turns)
	assert.Equal(t, 3, therapist.responseCount())
	assert.Equal(t, 3, client.responseCount())
	assert.Equal(t, "ababab", h.wavData(t, sum.Files.Combined))
	assert.Len(t, h.transcript(t, sum.Files.Transcript), 6)
}

func TestCancelDuringTurn(t *testing.T) {
	therapist := newFakeSession(audioTurn("a1"))
	client := newFakeSession() // never answers
	h := newHarness(t, therapist, client)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for client.responseCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, sum, err := h.run(t, ctx, testConfig())
	require.NoError(t, err)
	assert.Equal(t, EndCancelled, sum.EndReason)
	assert.Equal(t, "a1", h.wavData(t, sum.Files.Combined))
	assert.Len(t, h.transcript(t, sum.Files.Transcript), 1)
}

func TestTransportFailureEndsGracefully(t *testing.T) {
	therapist := newFakeSession(audioTurn("a1"))
	client := newFakeSession()
	client.respond = func(int) []frame { return []frame{errors.New("unexpected EOF")} }
	h := newHarness(t, therapist, client)

	_, sum, err := h.run(t, context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, EndTurnFailed, sum.EndReason)

	var te *TurnError
	require.ErrorAs(t, sum.TurnErr, &te)
	assert.Equal(t, RoleB, te.Role)
	assert.Equal(t, ReasonConnectionClosed, te.Reason)

	var tce *TransportClosedError
	require.ErrorAs(t, sum.LoopErr, &tce)
	assert.Equal(t, RoleB, tce.Role)
	assert.Equal(t, "a1", h.wavData(t, sum.Files.Combined))
}

// failingRecorder fails every Record call.
type failingRecorder struct {
	*recorder.Recorder
	err error
}

func (f failingRecorder) Record([]byte, Role) error { return f.err }

func TestRecorderFailureIsFatal(t *testing.T) {
	diskFull := errors.New("disk full")
	therapist := newFakeSession(audioTurn("a1"))
	h := newHarness(t, therapist, newFakeSession())

	c := NewCoordinator(h.dialer, failingRecorder{Recorder: h.rec, err: diskFull}, testConfig())
	sum, err := c.Run(context.Background())
	require.ErrorIs(t, err, diskFull)
	assert.Equal(t, EndRecorderFailed, sum.EndReason)
	require.NotNil(t, sum.Files)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Client.Voice = "robot"
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidVoice)
	assert.Contains(t, err.Error(), "client")

	cfg = DefaultConfig()
	cfg.MaxExchanges = -1
	assert.Error(t, cfg.Validate())
}

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "verse", cfg.Therapist.Voice)
	assert.Equal(t, "shimmer", cfg.Client.Voice)
	assert.Equal(t, 2*time.Minute, cfg.TurnTimeout)
	assert.Equal(t, time.Second, cfg.SettleDelay)
	assert.NotEmpty(t, cfg.Therapist.Instructions)

	for _, v := range Voices {
		assert.NoError(t, ValidateVoice(v))
	}
	assert.ErrorIs(t, ValidateVoice(""), ErrInvalidVoice)
}
