package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetAck returns the server id bound to an acknowledged local id.
// ok is false when the local id has not been acknowledged yet.
func (s *Storage) GetAck(ctx context.Context, userID, localID string) (int64, bool, error) {
	query := `SELECT server_id FROM delta_acks WHERE user_id = ? AND local_id = ?`

	var serverID int64
	err := s.db.QueryRowContext(ctx, query, userID, localID).Scan(&serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, unavailable("failed to get ack", err)
	}

	return serverID, true, nil
}

// saveAckTx записывает подтверждение local_id внутри транзакции мутации,
// чтобы задача и ее ack коммитились атомарно.
// INSERT OR IGNORE: повторное сохранение той же пары — no-op.
func saveAckTx(ctx context.Context, tx *sql.Tx, userID, localID string, serverID int64) error {
	query := `
		INSERT OR IGNORE INTO delta_acks (user_id, local_id, server_id, applied_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := tx.ExecContext(ctx, query, userID, localID, serverID, time.Now().Unix()); err != nil {
		return unavailable("failed to save ack", err)
	}

	return nil
}
