package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/duet/pkg/catalog"
	"github.com/haivivi/duet/pkg/cli"
	"github.com/haivivi/duet/pkg/kv"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Browse finished sessions",
	Long: `Browse the catalog of finished sessions.

Every 'duet run' adds a record with its voices, outcome and files. IDs may
be abbreviated to any unique prefix.

Examples:
  duet sessions list
  duet sessions show 3f2a
  duet sessions show 3f2a -o json
  duet sessions rm 3f2a`,
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog()
		if err != nil {
			return err
		}
		defer closeFn()

		records, err := cat.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cli.Stdout, "No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cli.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tVOICES\tEXCHANGES\tEND")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s/%s\t%d\t%s\n",
				shortID(r.ID), cli.FormatTime(r.Started), r.TherapistVoice, r.ClientVoice, r.Exchanges, r.EndReason)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog()
		if err != nil {
			return err
		}
		defer closeFn()

		r, err := cat.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.Output(cli.Stdout, r, outputFormat())
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a session from the catalog (recordings are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := cat.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Session %s removed.", args[0])
		return nil
	},
}

// testKVOverride replaces the badger catalog store in tests.
var testKVOverride kv.Store

func openCatalog() (*catalog.Catalog, func(), error) {
	if testKVOverride != nil {
		return catalog.New(testKVOverride), func() {}, nil
	}
	cfg, err := GetConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.CatalogDir(), Logger: slog.Default()})
	if err != nil {
		return nil, nil, fmt.Errorf("open session catalog: %w", err)
	}
	return catalog.New(store), func() {
		if err := store.Close(); err != nil {
			slog.Warn("close session catalog", "error", err)
		}
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)

	rootCmd.AddCommand(sessionsCmd)
}
