package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/froyo-age/pkg/stores"
	"github.com/spf13/cobra"
)

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Decryption audit log",
		Long: `Inspect the decryption audit log.

When audit.enabled is set, every importAge and readAgeFile call is recorded
with its ciphertext path, outcome and duration. Plaintext and identity
paths are never recorded.`,
	}

	cmd.PersistentFlags().String("db", "", "audit database path (defaults to audit.path from the settings)")

	cmd.AddCommand(newAuditListCommand())
	cmd.AddCommand(newAuditPruneCommand())

	return cmd
}

// auditStore opens the database named by --db or the settings.
func auditStore(cmd *cobra.Command) (*stores.SQLiteStore, context.Context, error) {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		settings, _, err := loadSettings(ctx)
		if err != nil {
			return nil, ctx, err
		}
		if settings.Audit.Path == "" {
			return nil, ctx, fmt.Errorf("no audit database configured: set audit.path or pass --db")
		}
		path = settings.Audit.Path
	}

	store, err := openAuditStore(ctx, path)
	return store, ctx, err
}

func newAuditListCommand() *cobra.Command {
	var (
		limit  int
		offset int
		path   string
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent decryptions",
		Example: `  # Show the 20 most recent decryptions
  froyo-age audit list --limit 20

  # Show failures for one file
  froyo-age audit list --failed --path /srv/secrets/db.age`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, ctx, err := auditStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var filter stores.DecryptFilter
			if path != "" {
				filter.CiphertextPath = &path
			}
			if failed {
				status := stores.AuditStatusFailed
				filter.Status = &status
			}

			records, err := store.ListDecrypts(ctx, filter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tOPERATION\tSTATUS\tDURATION\tPATH\tERROR")
			for _, r := range records {
				errMsg := ""
				if r.Error != nil {
					errMsg = *r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\t%s\n",
					r.CreatedAt.Local().Format(time.RFC3339),
					r.Operation,
					r.Status,
					r.DurationMs,
					r.CiphertextPath,
					errMsg,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	cmd.Flags().StringVar(&path, "path", "", "only records for this ciphertext path")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed decryptions")

	return cmd
}

func newAuditPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old audit records",
		Example: `  # Keep 30 days of history
  froyo-age audit prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			store, ctx, err := auditStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneDecrypts(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]int64{"removed": removed})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", removed)
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete records older than this")

	return cmd
}
