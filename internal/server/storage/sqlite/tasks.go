package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server/storage"
)

// InsertTask persists a new task, allocating the server id, setting version
// to 1 and stamping a fresh change sequence.
// Непустой ackLocalID записывается в delta_acks той же транзакцией:
// задача и ее подтверждение либо коммитятся вместе, либо никак.
func (s *Storage) InsertTask(ctx context.Context, task *models.Task, ackLocalID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (
			local_id, user_id, title, description, status, priority,
			version, change_seq, due_at, completed_at, deleted,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		task.LocalID,
		task.UserID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		seq,
		timePtrToUnix(task.DueAt),
		timePtrToUnix(task.CompletedAt),
		boolToInt(task.Deleted),
		task.CreatedAt.Unix(),
		task.UpdatedAt.Unix(),
	)
	if err != nil {
		return unavailable("failed to insert task", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted id: %w", err)
	}

	if ackLocalID != "" {
		if err := saveAckTx(ctx, tx, task.UserID, ackLocalID, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit insert", err)
	}

	task.ID = id
	task.Version = 1
	task.ChangeSeq = seq
	return nil
}

// GetTask retrieves a task by server id regardless of the deleted flag.
// Returns ErrTaskNotFound if no such task exists for the user.
func (s *Storage) GetTask(ctx context.Context, userID string, id int64) (*models.Task, error) {
	query := `
		SELECT id, local_id, user_id, title, description, status, priority,
		       version, change_seq, due_at, completed_at, deleted,
		       created_at, updated_at
		FROM tasks
		WHERE id = ? AND user_id = ?
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTaskNotFound
		}
		return nil, unavailable("failed to get task", err)
	}

	return task, nil
}

// UpdateTaskCAS applies the full task row if and only if the stored version
// equals expectedVersion. Проверка версии, запись и подтверждение
// ackLocalID выполняются одной транзакцией: первый успевший писатель
// выигрывает, второй получает ErrVersionMismatch.
func (s *Storage) UpdateTaskCAS(ctx context.Context, task *models.Task, expectedVersion int64, ackLocalID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?,
		    version = ?, change_seq = ?, due_at = ?, completed_at = ?,
		    deleted = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND version = ?
	`

	result, err := tx.ExecContext(ctx, query,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		expectedVersion+1,
		seq,
		timePtrToUnix(task.DueAt),
		timePtrToUnix(task.CompletedAt),
		boolToInt(task.Deleted),
		task.UpdatedAt.Unix(),
		task.ID,
		task.UserID,
		expectedVersion,
	)
	if err != nil {
		return unavailable("failed to update task", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		// Различаем "задачи нет" и "версия ушла вперед"
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM tasks WHERE id = ? AND user_id = ?",
			task.ID, task.UserID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		if exists == 0 {
			return storage.ErrTaskNotFound
		}
		return storage.ErrVersionMismatch
	}

	if ackLocalID != "" {
		if err := saveAckTx(ctx, tx, task.UserID, ackLocalID, task.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit update", err)
	}

	task.Version = expectedVersion + 1
	task.ChangeSeq = seq
	return nil
}

// ListChangedSince retrieves all tasks of the user (including deleted) with
// change sequence strictly greater than since, ordered by sequence
func (s *Storage) ListChangedSince(ctx context.Context, userID string, since int64) ([]*models.Task, error) {
	query := `
		SELECT id, local_id, user_id, title, description, status, priority,
		       version, change_seq, due_at, completed_at, deleted,
		       created_at, updated_at
		FROM tasks
		WHERE user_id = ? AND change_seq > ?
		ORDER BY change_seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, unavailable("failed to query changed tasks", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			err = cerr
		}
	}()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tasks, nil
}

// nextSeq инкрементирует глобальный счетчик change_seq внутри транзакции
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE server_seq SET seq = seq + 1 WHERE id = 1"); err != nil {
		return 0, unavailable("failed to advance change_seq", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT seq FROM server_seq WHERE id = 1").Scan(&seq); err != nil {
		return 0, unavailable("failed to read change_seq", err)
	}

	return seq, nil
}

// unavailable помечает ошибку драйвера сентинелом storage.ErrUnavailable:
// вызов синхронизации с такой ошибкой ничего не подтвердил и безопасен
// для повтора целиком
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}

// rowScanner покрывает и *sql.Row, и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask is a helper function to scan one task row
func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var status, priority string
	var deleted int
	var dueAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&task.ID,
		&task.LocalID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&status,
		&priority,
		&task.Version,
		&task.ChangeSeq,
		&dueAt,
		&completedAt,
		&deleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.Status(status)
	task.Priority = models.Priority(priority)
	task.Deleted = intToBool(deleted)
	task.DueAt = unixToTimePtr(dueAt)
	task.CompletedAt = unixToTimePtr(completedAt)
	task.CreatedAt = unixToTime(createdAt)
	task.UpdatedAt = unixToTime(updatedAt)

	return task, nil
}

// Helper functions for bool/int and time conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func unixToTime(timestamp int64) time.Time {
	return time.Unix(timestamp, 0)
}

func unixToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func timePtrToUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
