package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/tasksync/internal/client/api"
	"github.com/iudanet/tasksync/internal/models"
	pkgapi "github.com/iudanet/tasksync/pkg/api"
)

// NewSyncCommand creates the sync command
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending changes and pull server changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Token == "" {
				return fmt.Errorf("access token required (--token or TASKSYNC_TOKEN)")
			}

			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := newSyncService(opts, store).Sync(cmd.Context(), opts.Token)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"synced: pushed %d, acked %d, pulled %d, conflicts %d, rejected %d (cursor %d)\n",
				result.Pushed, result.Acked, result.Pulled,
				result.Conflicts, result.Rejected, result.NewCursor)

			if result.Conflicts > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "run 'tasksync conflicts' to inspect and resolve")
			}
			return nil
		},
	}
}

// NewWatchCommand creates the watch command
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to realtime changes and sync on every event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Token == "" {
				return fmt.Errorf("access token required (--token or TASKSYNC_TOKEN)")
			}

			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := newLogger(opts)
			svc := newSyncService(opts, store)

			// Каждое событие — сигнал догнать сервер обычной
			// синхронизацией от текущего курсора
			watcher := api.NewWatcher(logger, opts.ServerURL, opts.Token, func(event pkgapi.Event) {
				fmt.Fprintf(cmd.OutOrStdout(), "change: task %d v%d\n", event.TaskID, event.Version)
				if _, err := svc.Sync(cmd.Context(), opts.Token); err != nil {
					logger.Warn("sync after event failed", "error", err)
				}
			})

			fmt.Fprintln(cmd.OutOrStdout(), "watching for changes, Ctrl+C to stop")
			return watcher.Run(cmd.Context())
		},
	}
}

// NewConflictsCommand creates the conflicts command
func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List unresolved sync conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Conflicts(cmd.Context())
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no conflicts")
				return nil
			}

			for _, record := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: task %d (%s)\n",
					record.LocalID, record.ServerID, record.Reason)
				for _, diff := range record.FieldDiffs {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: server=%q client=%q\n",
						diff.Field, diff.ServerValue, diff.ClientValue)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  options: %v\n", record.Options)
			}
			return nil
		},
	}
}

// NewResolveCommand creates the resolve command
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <local-id> <keep_server|keep_client|merge>",
		Short: "Resolve a sync conflict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			choice := models.Resolution(args[1])
			switch choice {
			case models.ResolutionKeepServer, models.ResolutionKeepClient, models.ResolutionMerge:
			default:
				return fmt.Errorf("unknown resolution %q", args[1])
			}

			if err := newSyncService(opts, store).Resolve(cmd.Context(), args[0], choice); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s with %s, run 'tasksync sync' to apply\n", args[0], choice)
			return nil
		},
	}
}
