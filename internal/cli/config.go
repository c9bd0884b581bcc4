package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Long: `Load the config file (or the defaults), validate it against the
schema, apply flag overrides and print the result. Text output is YAML.

Examples:
  snapstate config
  snapstate config --config snapstate.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid config", err)
			}

			out := formatter(rootOpts, cmd)
			switch rootOpts.Format {
			case "json", "yaml":
				err = out.Success(cfg)
			default:
				err = out.encodeYAML(cfg)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to write config", err)
			}
			return nil
		},
	}
}
