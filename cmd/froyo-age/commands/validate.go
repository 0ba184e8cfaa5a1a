package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the settings file",
		Long: `Validate the froyo-age settings file and print the effective settings.

This command checks:
  - CUE or YAML syntax validity
  - Conformance to the built-in settings schema
  - Field constraints (timeouts, audit path, tracing endpoint)

Without --config the first of froyo-age.cue, froyo-age.yaml, froyo-age.yml
and froyo-age.json found in the working directory is used.`,
		Example: `  # Validate settings in the current directory
  froyo-age validate

  # Validate a specific file
  froyo-age validate -c /etc/froyo-age/froyo-age.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, source, err := loadSettings(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, settings)
			}

			if source == "" {
				source = "built-in defaults"
			}
			if _, err := fmt.Fprintf(out, "# %s\n", source); err != nil {
				return err
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	return cmd
}
