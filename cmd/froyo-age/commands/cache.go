package commands

import (
	"fmt"
	"path/filepath"

	"github.com/openfroyo/froyo-age/pkg/decrypt"
	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Plaintext cache management",
	}

	cmd.AddCommand(newCachePathCommand())

	return cmd
}

func newCachePathCommand() *cobra.Command {
	var (
		cacheDir string
		entry    string
	)

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory of the current user",
		Example: `  # Print the per-user cache directory
  froyo-age cache path

  # Print where the plaintext of a ciphertext would be cached
  froyo-age cache path --entry /srv/secrets/db.age`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cacheDir == "" {
				settings, _, err := loadSettings(cmd.Context())
				if err != nil {
					return err
				}
				cacheDir = settings.CacheDir
			}

			cache := decrypt.NewCache(cacheDir)
			path := cache.UserDir()
			if entry != "" {
				// Entries are keyed by the absolute ciphertext path.
				abs, err := filepath.Abs(entry)
				if err != nil {
					return err
				}
				path = cache.EntryPath(abs)
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{"path": path})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "cache root directory")
	cmd.Flags().StringVar(&entry, "entry", "", "ciphertext path to locate the cache entry for")

	return cmd
}
