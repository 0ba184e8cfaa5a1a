package commands

import (
	"fmt"

	"github.com/openfroyo/froyo-age/pkg/bridge"
	"github.com/openfroyo/froyo-age/pkg/config"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

type decryptFlags struct {
	identities []string
	noCache    bool
	cacheDir   string
}

func (f *decryptFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.identities, "identity", "i", nil, "identity file (repeatable; defaults to the settings)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the plaintext cache")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "", "cache root directory")
}

// callBuiltin runs the named builtin on file through the same path a
// script takes.
func callBuiltin(cmd *cobra.Command, version, name, file string, flags *decryptFlags) (*app, starlark.Value, error) {
	a, ctx, err := newApp(cmd.Context(), version)
	if err != nil {
		return nil, nil, err
	}

	thread := a.evaluator.NewThread(ctx, "froyo-age "+cmd.Name())
	req := a.request(file, flags.identities, flags.noCache, flags.cacheDir)

	value, err := a.bridge.Call(thread, name, req)
	if err != nil {
		_ = a.close()
		return nil, nil, err
	}
	return a, value, nil
}

func newReadCommand(version string) *cobra.Command {
	flags := &decryptFlags{}

	cmd := &cobra.Command{
		Use:   "read FILE",
		Short: "Decrypt a file and print its content",
		Long: `Decrypt an age-encrypted file and print the plaintext, exactly as
readAgeFile would return it to a script.`,
		Example: `  # Decrypt with an age identity
  froyo-age read token.age -i ~/.config/age/key.txt

  # Decrypt with an SSH key, skipping the cache
  froyo-age read token.age -i ~/.ssh/id_ed25519 --no-cache`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, value, err := callBuiltin(cmd, version, bridge.ReadAgeFileName, args[0], flags)
			if err != nil {
				return err
			}
			defer a.close()

			text, ok := starlark.AsString(value)
			if !ok {
				return fmt.Errorf("%s returned %s", bridge.ReadAgeFileName, value.Type())
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), text)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

func newImportCommand(version string) *cobra.Command {
	flags := &decryptFlags{}

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Decrypt a file and evaluate it as a Starlark expression",
		Long: `Decrypt an age-encrypted file, evaluate its content as a Starlark
expression exactly as importAge would, and print the value as JSON.`,
		Example: `  # Print a decrypted record
  froyo-age import db.age -i ~/.config/age/key.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, value, err := callBuiltin(cmd, version, bridge.ImportAgeName, args[0], flags)
			if err != nil {
				return err
			}
			defer a.close()

			goValue, err := config.ToGo(value)
			if err != nil {
				return fmt.Errorf("converting result: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), goValue)
		},
	}

	flags.register(cmd)
	return cmd
}
