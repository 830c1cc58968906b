package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server/storage"
	"github.com/iudanet/tasksync/pkg/api"
)

// Reconciler определяет интерфейс координатора синхронизации
type Reconciler interface {
	Reconcile(ctx context.Context, userID string, cursor int64, deltas []models.DeltaRecord) (*api.SyncResponse, error)
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger      *slog.Logger
	coordinator Reconciler
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, coordinator Reconciler) *SyncHandler {
	return &SyncHandler{
		logger:      logger,
		coordinator: coordinator,
	}
}

// HandleSync обрабатывает POST /api/v1/sync
// Принимает батч дельт от клиента и возвращает изменения сервера,
// подтвержденные local_id, отклонения и конфликты.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Получаем user_id из контекста (установлен AuthMiddleware)
	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.Error("User ID not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode sync request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Cursor < 0 {
		h.logger.Warn("Negative cursor in sync request", "cursor", req.Cursor)
		http.Error(w, "Invalid cursor", http.StatusBadRequest)
		return
	}

	h.logger.Info("sync request",
		"user_id", userID,
		"cursor", req.Cursor,
		"changes", len(req.Changes))

	resp, err := h.coordinator.Reconcile(ctx, userID, req.Cursor, req.Changes)
	if err != nil {
		// Весь вызов падает только при недоступности хранилища:
		// ничего из батча не подтверждено, повтор безопасен
		h.logger.Error("Reconcile failed", "error", err, "user_id", userID)
		if errors.Is(err, storage.ErrUnavailable) {
			http.Error(w, "Storage unavailable, retry the batch", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
