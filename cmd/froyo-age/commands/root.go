package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "froyo-age",
		Short: "Age-encrypted values for Starlark configuration",
		Long: `froyo-age evaluates Starlark configuration that reads age-encrypted files.

Scripts get two builtins:
  - importAge(identities, path, configs): decrypt a file and evaluate its
    content as a Starlark expression
  - readAgeFile(identities, path, configs): decrypt a file and return its
    content as a string

configs accepts "cache" (bool, default True) and "cache_dir" (path or string).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file or CUE package directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newEvalCommand(version))
	rootCmd.AddCommand(newReadCommand(version))
	rootCmd.AddCommand(newImportCommand(version))
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
