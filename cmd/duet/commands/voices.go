package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/duet/pkg/cli"
	"github.com/haivivi/duet/pkg/duet"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices a persona may use",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, v := range duet.Voices {
			var mark string
			switch v {
			case duet.DefaultTherapistVoice:
				mark = "  (default therapist)"
			case duet.DefaultClientVoice:
				mark = "  (default client)"
			}
			fmt.Fprintf(cli.Stdout, "%s%s\n", v, mark)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(voicesCmd)
}
