// Package cli реализует команды клиента tasksync.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	httpClient "github.com/iudanet/tasksync/internal/client/api"
	"github.com/iudanet/tasksync/internal/client/queue"
	syncService "github.com/iudanet/tasksync/internal/client/sync"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ServerURL string
	DBPath    string
	Token     string
	Verbose   bool
}

// NewRootCommand creates the root command for the tasksync CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tasksync",
		Short: "tasksync - offline-first task manager with server sync",
		Long: `Клиент tasksync: локальная очередь правок поверх BoltDB,
синхронизация с сервером батчами дельт и realtime-подписка на изменения
с других устройств.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "http://localhost:8080", "server URL")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "tasksync-client.db", "path to local database")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("TASKSYNC_TOKEN"), "access token (defaults to TASKSYNC_TOKEN env)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))

	return cmd
}

// newLogger создает логгер с уровнем по флагу verbose
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore открывает локальную очередь клиента
func openStore(cmd *cobra.Command, opts *RootOptions) (*queue.Storage, error) {
	return queue.New(cmd.Context(), opts.DBPath)
}

// newSyncService собирает клиентский цикл синхронизации
func newSyncService(opts *RootOptions, store *queue.Storage) syncService.Service {
	return syncService.NewService(httpClient.NewClient(opts.ServerURL), store, newLogger(opts))
}
