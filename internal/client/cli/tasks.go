package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iudanet/tasksync/internal/models"
)

// NewAddCommand creates the add command
func NewAddCommand(opts *RootOptions) *cobra.Command {
	var (
		description string
		priority    string
		due         string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task to the local queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			title := args[0]
			payload := &models.TaskPayload{
				ChangedAt: time.Now(),
				Title:     &title,
			}

			if description != "" {
				payload.Description = &description
			}
			if priority != "" {
				p := models.Priority(priority)
				if !p.Valid() {
					return fmt.Errorf("unknown priority %q", priority)
				}
				payload.Priority = &p
			}
			if due != "" {
				dueAt, err := time.Parse(time.RFC3339, due)
				if err != nil {
					return fmt.Errorf("invalid due time, expected RFC3339: %w", err)
				}
				payload.DueAt = &dueAt
			}

			delta := &models.DeltaRecord{
				LocalID: uuid.NewString(),
				Op:      models.OpInsert,
				Payload: payload,
			}

			if err := store.Enqueue(cmd.Context(), delta); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued: %s (%s)\n", title, delta.LocalID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (low|medium|high)")
	cmd.Flags().StringVar(&due, "due", "", "due time (RFC3339)")

	return cmd
}

// NewListCommand creates the list command
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks from the local replica",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := store.Tasks(cmd.Context())
			if err != nil {
				return err
			}

			pending, err := store.PendingCount(cmd.Context())
			if err != nil {
				return err
			}

			for _, t := range tasks {
				due := ""
				if t.DueAt != nil {
					due = " due " + t.DueAt.Format("2006-01-02")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%4d v%-3d [%s] %-8s %s%s\n",
					t.ID, t.Version, t.Status, t.Priority, t.Title, due)
			}

			if pending > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d local change(s) not synced yet\n", pending)
			}
			return nil
		},
	}
}

// NewDoneCommand creates the done command
func NewDoneCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queueUpdate(cmd, opts, args[0], func(payload *models.TaskPayload) {
				status := models.StatusDone
				payload.Status = &status
			})
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task (soft delete on the server)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id: %w", err)
			}

			task, err := store.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}

			delta := &models.DeltaRecord{
				LocalID:       uuid.NewString(),
				Op:            models.OpDelete,
				TaskID:        task.ID,
				ClientVersion: task.Version,
			}

			if err := store.Enqueue(cmd.Context(), delta); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued delete of task %d\n", task.ID)
			return nil
		},
	}
}

// queueUpdate ставит в очередь update-дельту для задачи локальной реплики.
// client_version берется из реплики: если сервер уже ушел вперед,
// синхронизация вернет конфликт.
func queueUpdate(cmd *cobra.Command, opts *RootOptions, rawID string, mutate func(*models.TaskPayload)) error {
	store, err := openStore(cmd, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id: %w", err)
	}

	task, err := store.GetTask(cmd.Context(), id)
	if err != nil {
		return err
	}

	payload := &models.TaskPayload{ChangedAt: time.Now()}
	mutate(payload)

	delta := &models.DeltaRecord{
		LocalID:       uuid.NewString(),
		Op:            models.OpUpdate,
		TaskID:        task.ID,
		ClientVersion: task.Version,
		Payload:       payload,
	}

	if err := store.Enqueue(cmd.Context(), delta); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "queued update of task %d (v%d)\n", task.ID, task.Version)
	return nil
}
