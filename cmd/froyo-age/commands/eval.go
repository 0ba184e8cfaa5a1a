package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/openfroyo/froyo-age/pkg/config"
	"github.com/spf13/cobra"
)

func newEvalCommand(version string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "eval SCRIPT",
		Short: "Evaluate a Starlark script",
		Long: `Evaluate a Starlark script with importAge and readAgeFile available and
print its public globals.

Relative paths passed to path() resolve against the script's directory.
Globals starting with an underscore and functions are not printed.`,
		Example: `  # Evaluate a script
  froyo-age eval secrets.star

  # Print globals as JSON
  froyo-age eval --json secrets.star

  # Re-evaluate whenever the script or a ciphertext next to it changes
  froyo-age eval --watch secrets.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.close()

			script := args[0]
			out := cmd.OutOrStdout()

			if !watch {
				return a.evalOnce(ctx, script, out)
			}

			if err := a.evalOnce(ctx, script, out); err != nil {
				a.tel.Logger.WithError(err).Error("Evaluation failed")
			}
			return a.watch(ctx, script, out)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-evaluate when files change")

	return cmd
}

func (a *app) evalOnce(ctx context.Context, script string, out io.Writer) error {
	result, err := a.evaluator.EvaluateFile(ctx, script, nil)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, result.Output)
	}
	return printGlobals(out, result.Output)
}

// watch re-evaluates script on changes in its directory until ctx is done.
func (a *app) watch(ctx context.Context, script string, out io.Writer) error {
	abs, err := filepath.Abs(script)
	if err != nil {
		return err
	}

	logger := a.tel.Logger.NewComponentLogger("watch")
	w := config.NewWatcher(logger.Zerolog(), 0)
	err = w.Watch(ctx, []string{filepath.Dir(abs)}, func(ctx context.Context, changed string) {
		logger.WithField("file", changed).Info("Change detected, re-evaluating")
		if _, err := fmt.Fprintln(out, "---"); err != nil {
			return
		}
		if err := a.evalOnce(ctx, abs, out); err != nil {
			logger.WithError(err).Error("Evaluation failed")
		}
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}
