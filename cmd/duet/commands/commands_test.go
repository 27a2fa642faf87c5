package commands

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/duet/cmd/duet/internal/config"
	"github.com/haivivi/duet/pkg/catalog"
	"github.com/haivivi/duet/pkg/cli"
	"github.com/haivivi/duet/pkg/kv"
)

// setupTestEnv points the config dir at a temp dir and gives the catalog an
// in-memory store.
func setupTestEnv(t *testing.T) kv.Store {
	t.Helper()
	t.Setenv(config.EnvDir, t.TempDir())
	t.Setenv(envAPIKey, "")

	store := kv.NewMemory()
	testKVOverride = store
	t.Cleanup(func() { testKVOverride = nil })
	return store
}

func execCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	cli.Stdout, cli.Stderr = &outBuf, &errBuf
	defer func() { cli.Stdout, cli.Stderr = os.Stdout, os.Stderr }()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		stderr += err.Error()
	}

	resetFlags(rootCmd)
	return
}

// mustExec runs args and fails the test on a non-zero exit.
func mustExec(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, code := execCmd(t, args...)
	if code != 0 {
		t.Fatalf("%s: exit %d: %s", strings.Join(args, " "), code, stderr)
	}
	return stdout
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)

	if out := mustExec(t, "version"); !strings.Contains(out, "duet dev") {
		t.Fatalf("expected 'duet dev', got: %s", out)
	}
	if out := mustExec(t, "version", "--format", "json"); !strings.Contains(out, `"version": "dev"`) {
		t.Fatalf("expected JSON, got: %s", out)
	}
}

func TestVoices(t *testing.T) {
	setupTestEnv(t)

	out := mustExec(t, "voices")
	for _, want := range []string{"verse  (default therapist)", "shimmer  (default client)", "alloy"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestConfigContexts(t *testing.T) {
	setupTestEnv(t)

	if out := mustExec(t, "config", "list-contexts"); !strings.Contains(out, "No contexts") {
		t.Fatalf("expected 'No contexts', got: %s", out)
	}

	mustExec(t, "config", "add-context", "dev")
	_, stderr, code := execCmd(t, "config", "add-context", "dev")
	if code == 0 {
		t.Fatal("expected non-zero exit for duplicate")
	}
	if !strings.Contains(stderr, "already exists") {
		t.Fatalf("expected 'already exists', got: %s", stderr)
	}

	mustExec(t, "config", "use-context", "dev")
	if out := mustExec(t, "config", "current-context"); out != "dev\n" {
		t.Fatalf("current-context = %q", out)
	}

	mustExec(t, "config", "set", "dev", "archive", "path_style", "true")
	mustExec(t, "config", "set", "dev", "archive", "bucket", "recordings")
	if out := mustExec(t, "config", "get", "dev", "archive", "bucket"); out != "recordings\n" {
		t.Fatalf("get bucket = %q", out)
	}
	if out := mustExec(t, "config", "list-contexts"); !strings.Contains(out, "archive") {
		t.Fatalf("expected archive service listed, got: %s", out)
	}

	_, stderr, code = execCmd(t, "config", "get", "dev", "archive", "region")
	if code == 0 || !strings.Contains(stderr, "not found") {
		t.Fatalf("expected missing key error, got exit %d: %s", code, stderr)
	}

	mustExec(t, "config", "delete-context", "dev")
	if out := mustExec(t, "config", "current-context"); !strings.Contains(out, "No current context") {
		t.Fatalf("expected no current context, got: %s", out)
	}
}

func TestRunRejectsInvalidVoice(t *testing.T) {
	setupTestEnv(t)

	_, stderr, code := execCmd(t, "run", "--api-key", "sk-test", "--therapist-voice", "robot", "--out", t.TempDir())
	if code == 0 {
		t.Fatal("expected non-zero exit for invalid voice")
	}
	if !strings.Contains(stderr, "robot") {
		t.Fatalf("expected voice in error, got: %s", stderr)
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	setupTestEnv(t)

	_, stderr, code := execCmd(t, "run", "--out", t.TempDir())
	if code == 0 {
		t.Fatal("expected non-zero exit without a key")
	}
	if !strings.Contains(stderr, "no API key") {
		t.Fatalf("expected 'no API key', got: %s", stderr)
	}
}

// realtimeServer acknowledges session.update and answers response.create
// with one audio chunk on connections configured with audioVoice and with
// silence elsewhere. Voices listed in reject get an error frame instead of
// the acknowledgement.
type realtimeServer struct {
	audioVoice string
	reject     []string

	mu     sync.Mutex
	auth   []string
	voices []string
}

func (s *realtimeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var voice string
	for {
		var msg struct {
			Type    string `json:"type"`
			Session struct {
				Voice string `json:"voice"`
			} `json:"session"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "session.update":
			voice = msg.Session.Voice
			s.mu.Lock()
			s.voices = append(s.voices, voice)
			s.mu.Unlock()
			if slices.Contains(s.reject, voice) {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":{"type":"invalid_request_error","message":"Invalid value: '`+voice+`'"}}`))
				continue
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.updated","session":{"id":"sess_1"}}`))
		case "response.create":
			if voice == s.audioVoice {
				chunk := base64.StdEncoding.EncodeToString(make([]byte, 4800))
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.audio.delta","delta":"`+chunk+`"}`))
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.done","response":{"id":"r","status":"completed"}}`))
		}
	}
}

func (s *realtimeServer) seen() (auth, voices []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.auth), slices.Clone(s.voices)
}

// startRealtime serves fake and stores its URL in the "test" context.
func startRealtime(t *testing.T, fake *realtimeServer) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	mustExec(t, "config", "add-context", "test")
	mustExec(t, "config", "set", "test", "openai", "api_key", "sk-context")
	mustExec(t, "config", "set", "test", "openai", "base_url", "ws"+strings.TrimPrefix(srv.URL, "http"))
}

func writePersonas(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.yaml")
	content := "therapist:\n  voice: sage\n  instructions: be kind\nclient:\n  voice: ash\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSession(t *testing.T) {
	store := setupTestEnv(t)
	fake := &realtimeServer{audioVoice: "sage"}
	startRealtime(t, fake)

	out := t.TempDir()
	stdout := mustExec(t, "run",
		"--context", "test",
		"--persona-file", writePersonas(t),
		"--out", out,
		"--settle", "0",
		"--turn-timeout", "5s")
	for _, want := range []string{"Therapist turn 1", "no_audio"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output, got: %s", want, stdout)
		}
	}

	auth, voices := fake.seen()
	if want := []string{"Bearer sk-context", "Bearer sk-context"}; !slices.Equal(auth, want) {
		t.Errorf("auth headers = %v, want %v", auth, want)
	}
	if want := []string{"sage", "ash"}; !slices.Equal(voices, want) {
		t.Errorf("voices = %v, want %v", voices, want)
	}

	dirs, err := filepath.Glob(filepath.Join(out, "session_*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected one session dir, got %v", dirs)
	}
	for _, pattern := range []string{"therapist_*.wav", "client_*.wav", "combined_session_*.wav", "transcript_*.txt"} {
		if matches, _ := filepath.Glob(filepath.Join(dirs[0], pattern)); len(matches) != 1 {
			t.Errorf("%s: got %v", pattern, matches)
		}
	}

	records, err := catalog.New(store).List(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one catalog record, got %d", len(records))
	}
	r := records[0]
	if r.EndReason != "no_audio" || r.Turns != 1 {
		t.Errorf("record end=%s turns=%d", r.EndReason, r.Turns)
	}
	if r.TherapistVoice != "sage" || r.ClientVoice != "ash" {
		t.Errorf("record voices %s/%s", r.TherapistVoice, r.ClientVoice)
	}
	if r.Dir != dirs[0] {
		t.Errorf("record dir = %s, want %s", r.Dir, dirs[0])
	}

	if out := mustExec(t, "sessions", "list"); !strings.Contains(out, r.ID[:8]) {
		t.Fatalf("expected %s in list, got: %s", r.ID[:8], out)
	}

	var shown catalog.Record
	if err := json.Unmarshal([]byte(mustExec(t, "sessions", "show", r.ID[:8], "-o", "json")), &shown); err != nil {
		t.Fatal(err)
	}
	if shown.ID != r.ID {
		t.Fatalf("show returned %s, want %s", shown.ID, r.ID)
	}

	mustExec(t, "sessions", "rm", r.ID)
	if out := mustExec(t, "sessions", "list"); !strings.Contains(out, "No sessions") {
		t.Fatalf("expected empty list, got: %s", out)
	}
}

func TestRunRejectedPersona(t *testing.T) {
	store := setupTestEnv(t)
	fake := &realtimeServer{audioVoice: "sage", reject: []string{"sage"}}
	startRealtime(t, fake)

	out := t.TempDir()
	_, stderr, code := execCmd(t, "run",
		"--context", "test",
		"--persona-file", writePersonas(t),
		"--out", out,
		"--settle", "0",
		"--connect-timeout", "5s")
	if code == 0 {
		t.Fatal("expected non-zero exit when the persona is rejected")
	}
	if !strings.Contains(stderr, "configure therapist") || !strings.Contains(stderr, "Invalid value") {
		t.Fatalf("expected configure error, got: %s", stderr)
	}

	if _, voices := fake.seen(); len(voices) != 1 {
		t.Errorf("client was configured after the therapist was rejected: %v", voices)
	}
	if matches, _ := filepath.Glob(filepath.Join(out, "session_*", "transcript_*.txt")); len(matches) != 0 {
		t.Errorf("unexpected transcript %v", matches)
	}

	records, err := catalog.New(store).List(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].EndReason != "configure_failed" {
		t.Fatalf("expected one configure_failed record, got %+v", records)
	}
}
