package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/duet/cmd/duet/internal/config"
	"github.com/haivivi/duet/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts and service configurations.

A context is a named directory holding per-service YAML config files:
  openai.yaml    api_key, model, organization, project, base_url
  archive.yaml   bucket, prefix, region, endpoint, path_style

Examples:
  duet config list-contexts
  duet config add-context dev
  duet config use-context dev
  duet config current-context
  duet config set dev openai api_key sk-xxx
  duet config set dev archive bucket my-recordings
  duet config get dev openai model`,
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names, err := cfg.ListContexts()
		if err != nil {
			return err
		}

		if len(names) == 0 {
			fmt.Fprintln(cli.Stdout, "No contexts configured.")
			fmt.Fprintln(cli.Stdout, "Create one with: duet config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(cli.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVICES")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			services, _ := config.ListServices(cfg.ContextDir(name))
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, strings.Join(services, ", "))
		}
		return w.Flush()
	},
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create a new context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q created.", args[0])
		fmt.Fprintf(cli.Stdout, "Configure services with: duet config set %s <service> <key> <value>\n", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context and all its service configs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted.", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q.", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cli.Stdout, "No current context set.")
			return nil
		}
		fmt.Fprintln(cli.Stdout, cfg.CurrentContext)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <service> <key> <value>",
	Short: "Set a service config value",
	Long: `Set a key-value pair in a service's YAML config file.

Values "true" and "false" are stored as booleans.

Examples:
  duet config set dev openai api_key sk-xxxx
  duet config set dev archive bucket my-recordings
  duet config set dev archive path_style true`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service, key, value := args[0], args[1], args[2], args[3]
		contextDir, err := cfg.ResolveContext(ctxName)
		if err != nil {
			return err
		}
		if err := config.ValidateServiceName(service); err != nil {
			return err
		}

		m := map[string]any{}
		if config.ServiceExists(contextDir, service) {
			existing, err := config.LoadService[map[string]any](contextDir, service)
			if err != nil {
				return fmt.Errorf("cannot read existing %s config: %w", service, err)
			}
			if *existing != nil {
				m = *existing
			}
		}
		m[key] = parseValue(value)

		if err := config.SaveService(contextDir, service, &m); err != nil {
			return err
		}
		cli.PrintSuccess("Set %s.%s (context: %s)", service, key, ctxName)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <context> <service> <key>",
	Short: "Get a service config value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service, key := args[0], args[1], args[2]
		contextDir, err := cfg.ResolveContext(ctxName)
		if err != nil {
			return err
		}
		if err := config.ValidateServiceName(service); err != nil {
			return err
		}

		m, err := config.LoadService[map[string]any](contextDir, service)
		if err != nil {
			return err
		}
		val, ok := (*m)[key]
		if !ok {
			return fmt.Errorf("key %q not found in %s config", key, service)
		}
		fmt.Fprintln(cli.Stdout, val)
		return nil
	},
}

func parseValue(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

func init() {
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)

	rootCmd.AddCommand(configCmd)
}

