package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/duet/cmd/duet/internal/build"
	"github.com/haivivi/duet/pkg/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("format") {
			return cli.Output(cli.Stdout, build.Get(), outputFormat())
		}
		fmt.Fprintln(cli.Stdout, build.String())
		if IsVerbose() {
			fmt.Fprintf(cli.Stdout, "  go:     %s\n", build.Get().Go)
			if cfg, err := GetConfig(); err == nil {
				fmt.Fprintf(cli.Stdout, "  config: %s\n", cfg.Dir)
			} else {
				fmt.Fprintf(cli.Stdout, "  config: (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
