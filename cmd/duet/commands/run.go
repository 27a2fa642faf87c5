package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/duet/cmd/duet/internal/config"
	"github.com/haivivi/duet/pkg/catalog"
	"github.com/haivivi/duet/pkg/cli"
	"github.com/haivivi/duet/pkg/duet"
	"github.com/haivivi/duet/pkg/metrics"
	openairealtime "github.com/haivivi/duet/pkg/openai-realtime"
	"github.com/haivivi/duet/pkg/recorder"
	"github.com/haivivi/duet/pkg/storage"
)

// envAPIKey is the environment fallback for the API key.
const envAPIKey = "OPENAI_API_KEY"

var runOpts struct {
	therapistVoice string
	clientVoice    string
	personaFile    string
	model          string
	apiKey         string
	outDir         string
	turnTimeout    time.Duration
	connectTimeout time.Duration
	settle         time.Duration
	maxExchanges   int
	archive        bool
	metricsAddr    string
	context        string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a therapist/client voice session",
	Long: `Connect two realtime sessions and let them talk.

The therapist opens; from then on each participant's audio is sent to the
other as its next input. The session ends when a turn yields no audio, a
turn fails, --max-exchanges is reached or on Ctrl-C. Recordings are always
finalized:

  <out>/session_<stamp>/therapist_<stamp>.wav
  <out>/session_<stamp>/client_<stamp>.wav
  <out>/session_<stamp>/combined_session_<stamp>.wav
  <out>/session_<stamp>/transcript_<stamp>.txt

A persona file sets voices and instructions for both roles:

  therapist:
    voice: sage
    instructions: |
      You are a calm cognitive behavioural therapist ...
  client:
    voice: ash
    instructions: |
      You are a student worried about exams ...

Voice flags override the persona file. The API key is taken from --api-key,
then openai.yaml in the context, then $OPENAI_API_KEY.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.therapistVoice, "therapist-voice", duet.DefaultTherapistVoice, "therapist voice")
	f.StringVar(&runOpts.clientVoice, "client-voice", duet.DefaultClientVoice, "client voice")
	f.StringVarP(&runOpts.personaFile, "persona-file", "f", "", "YAML or JSON file with therapist and client personas")
	f.StringVar(&runOpts.model, "model", "", "realtime model (default from context or "+openairealtime.DefaultModel+")")
	f.StringVar(&runOpts.apiKey, "api-key", "", "OpenAI API key")
	f.StringVar(&runOpts.outDir, "out", "recordings", "output directory for recordings")
	f.DurationVar(&runOpts.turnTimeout, "turn-timeout", duet.DefaultTurnTimeout, "bound on each turn (0 waits forever)")
	f.DurationVar(&runOpts.connectTimeout, "connect-timeout", duet.DefaultConnectTimeout, "bound on each connection attempt")
	f.DurationVar(&runOpts.settle, "settle", duet.DefaultSettleDelay, "pause between turns")
	f.IntVar(&runOpts.maxExchanges, "max-exchanges", 0, "stop after this many exchanges (0 = no limit)")
	f.BoolVar(&runOpts.archive, "archive", false, "mirror the session to S3 using archive.yaml from the context")
	f.StringVar(&runOpts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.StringVarP(&runOpts.context, "context", "c", "", "config context (default: current context)")

	rootCmd.AddCommand(runCmd)
}

// personaFile is the layout of --persona-file.
type personaFile struct {
	Therapist *duet.Persona `json:"therapist" yaml:"therapist"`
	Client    *duet.Persona `json:"client" yaml:"client"`
}

// dialerOverride replaces the realtime client in tests.
var dialerOverride duet.Dialer

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := sessionConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctxDir, err := runContextDir()
	if err != nil {
		return err
	}
	oa, err := loadOpenAI(ctxDir)
	if err != nil {
		return err
	}
	if cfg.Model == "" {
		cfg.Model = oa.Model
	}

	dialer := dialerOverride
	if dialer == nil {
		dialer = newRealtimeClient(oa)
	}

	var archive *storage.S3Options
	if runOpts.archive {
		if ctxDir == "" {
			return fmt.Errorf("--archive needs a context with %s.yaml: %w", config.ServiceArchive, config.ErrNoContext)
		}
		if archive, err = config.LoadService[storage.S3Options](ctxDir, config.ServiceArchive); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metrics.DefaultNamespace)
	if runOpts.metricsAddr != "" {
		shutdown, err := serveMetrics(runOpts.metricsAddr, m)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	store, err := storage.NewLocal(runOpts.outDir)
	if err != nil {
		return err
	}
	rec, err := recorder.New(ctx, store, time.Now().Format(recorder.StampLayout))
	if err != nil {
		return err
	}

	styles := cli.NewStyles(cli.DefaultTheme)
	coord := duet.NewCoordinator(dialer, rec, cfg,
		duet.WithMetrics(m),
		duet.WithLogger(slog.Default()),
		duet.WithTurnHook(func(t duet.TurnInfo) {
			fmt.Fprintln(cli.Stdout, styles.Banner(fmt.Sprintf("Exchange %d · %s turn %d", t.Exchange, t.Role.Title(), t.Turn)))
			fmt.Fprintf(cli.Stdout, "  %s of audio in %s\n", cli.FormatDuration(t.Audio), cli.FormatDuration(t.Took))
		}),
	)

	cli.PrintInfo("Session %s: therapist %s, client %s. Press Ctrl-C to stop.",
		rec.Dir(), cfg.Therapist.Voice, cfg.Client.Voice)
	sum, runErr := coord.Run(ctx)
	if sum == nil {
		return runErr
	}

	record := catalog.FromSummary(sum, cfg, store.Path(rec.Dir()))
	if archive != nil && sum.Files != nil {
		url, err := archiveSession(context.WithoutCancel(ctx), *archive, store, sum.Files)
		if err != nil {
			cli.PrintWarning("archive failed: %v", err)
		} else {
			record.Archive = url
		}
	}
	if err := saveRecord(context.WithoutCancel(ctx), record); err != nil {
		cli.PrintWarning("session not cataloged: %v", err)
	}

	fmt.Fprintln(cli.Stdout, styles.Box("Session "+shortID(sum.ID), summaryRows(sum, record)))
	return runErr
}

// sessionConfig builds the session config from defaults, the persona file
// and the flags, in that order.
func sessionConfig(cmd *cobra.Command) (duet.Config, error) {
	cfg := duet.DefaultConfig()
	if runOpts.personaFile != "" {
		var pf personaFile
		if err := cli.LoadFile(runOpts.personaFile, &pf); err != nil {
			return cfg, fmt.Errorf("persona file: %w", err)
		}
		mergePersona(&cfg.Therapist, pf.Therapist)
		mergePersona(&cfg.Client, pf.Client)
	}

	flags := cmd.Flags()
	if flags.Changed("therapist-voice") || runOpts.personaFile == "" {
		cfg.Therapist.Voice = runOpts.therapistVoice
	}
	if flags.Changed("client-voice") || runOpts.personaFile == "" {
		cfg.Client.Voice = runOpts.clientVoice
	}
	cfg.Model = runOpts.model
	cfg.TurnTimeout = runOpts.turnTimeout
	cfg.ConnectTimeout = runOpts.connectTimeout
	cfg.SettleDelay = runOpts.settle
	cfg.MaxExchanges = runOpts.maxExchanges
	return cfg, nil
}

func mergePersona(dst, src *duet.Persona) {
	if src == nil {
		return
	}
	if src.Voice != "" {
		dst.Voice = src.Voice
	}
	if src.Instructions != "" {
		dst.Instructions = src.Instructions
	}
	if src.Temperature != nil {
		dst.Temperature = src.Temperature
	}
}

// runContextDir resolves --context, or the current context if one is set.
// It returns "" when neither is set.
func runContextDir() (string, error) {
	cfg, err := GetConfig()
	if err != nil {
		if runOpts.context != "" {
			return "", err
		}
		return "", nil
	}
	if runOpts.context == "" && cfg.CurrentContext == "" {
		return "", nil
	}
	return cfg.ResolveContext(runOpts.context)
}

// loadOpenAI merges --api-key, openai.yaml and $OPENAI_API_KEY.
func loadOpenAI(ctxDir string) (*config.OpenAI, error) {
	oa := &config.OpenAI{}
	if ctxDir != "" && config.ServiceExists(ctxDir, config.ServiceOpenAI) {
		loaded, err := config.LoadService[config.OpenAI](ctxDir, config.ServiceOpenAI)
		if err != nil {
			return nil, err
		}
		oa = loaded
	}
	if runOpts.apiKey != "" {
		oa.APIKey = runOpts.apiKey
	}
	if oa.APIKey == "" {
		oa.APIKey = os.Getenv(envAPIKey)
	}
	if oa.APIKey == "" {
		return nil, fmt.Errorf("no API key: use --api-key, 'duet config set <context> openai api_key', or $%s", envAPIKey)
	}
	return oa, nil
}

func newRealtimeClient(oa *config.OpenAI) *openairealtime.Client {
	var opts []openairealtime.Option
	if oa.Organization != "" {
		opts = append(opts, openairealtime.WithOrganization(oa.Organization))
	}
	if oa.Project != "" {
		opts = append(opts, openairealtime.WithProject(oa.Project))
	}
	if oa.BaseURL != "" {
		opts = append(opts, openairealtime.WithWebSocketURL(oa.BaseURL))
	}
	return openairealtime.NewClient(oa.APIKey, opts...)
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func serveMetrics(addr string, m *metrics.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	cli.PrintInfo("Metrics on http://%s/metrics", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func archiveSession(ctx context.Context, opts storage.S3Options, src storage.FileStore, files *recorder.Files) (string, error) {
	dst, err := storage.NewS3FromConfig(ctx, opts)
	if err != nil {
		return "", err
	}
	if err := storage.Mirror(ctx, dst, src, files.Paths()); err != nil {
		return "", err
	}
	url := dst.URL(files.Dir)
	cli.PrintSuccess("Archived to %s", url)
	return url, nil
}

func saveRecord(ctx context.Context, r *catalog.Record) error {
	cat, closeFn, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeFn()
	return cat.Put(ctx, r)
}

func summaryRows(sum *duet.Summary, r *catalog.Record) []cli.Row {
	rows := []cli.Row{
		{Label: "ID", Value: sum.ID},
		{Label: "Duration", Value: cli.FormatDuration(sum.Duration())},
		{Label: "Exchanges", Value: strconv.Itoa(sum.Exchanges)},
		{Label: "Turns", Value: strconv.Itoa(sum.Turns)},
		{Label: "Ended", Value: string(sum.EndReason)},
	}
	if sum.TurnErr != nil {
		rows = append(rows, cli.Row{Label: "Turn error", Value: sum.TurnErr.Error()})
	}
	if sum.LoopErr != nil {
		rows = append(rows, cli.Row{Label: "Loop error", Value: sum.LoopErr.Error()})
	}
	if sum.Files != nil {
		rows = append(rows, cli.Row{Label: "Recordings", Value: r.Dir})
	}
	if r.Archive != "" {
		rows = append(rows, cli.Row{Label: "Archive", Value: r.Archive})
	}
	return rows
}
