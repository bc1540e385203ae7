package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/repository"
	"earnbuddy-chat/internal/tasks"
)

// RoomActivityHandler 处理房间活跃度更新任务
type RoomActivityHandler struct {
	roomRepo repository.RoomRepository
}

// NewRoomActivityHandler 创建 Handler 实例
func NewRoomActivityHandler(roomRepo repository.RoomRepository) *RoomActivityHandler {
	return &RoomActivityHandler{roomRepo: roomRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomActivityHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
	logCtx.Info("Processing room activity task...")

	var payload tasks.RoomActivityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		// payload 损坏重试也不会成功
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.roomRepo.TouchActivity(ctx, payload.RoomID, payload.At, payload.MessageDelta); err != nil {
		logCtx.WithError(err).Errorf("Failed to touch activity for room %d", payload.RoomID)
		return fmt.Errorf("failed to touch activity for room %d: %w", payload.RoomID, err)
	}

	logCtx.WithField("room_id", payload.RoomID).Info("Room activity task processed successfully")
	return nil
}

// PresenceSweepHandler 处理周期性的在线集合清理任务
type PresenceSweepHandler struct {
	presenceRepo repository.PresenceRepository
}

// NewPresenceSweepHandler 创建 Handler 实例
func NewPresenceSweepHandler(presenceRepo repository.PresenceRepository) *PresenceSweepHandler {
	if presenceRepo == nil {
		panic("PresenceRepository cannot be nil for PresenceSweepHandler")
	}
	return &PresenceSweepHandler{presenceRepo: presenceRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())
	logCtx.Info("Processing presence sweep task...")

	swept, err := h.presenceRepo.SweepEmpty(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to sweep empty presence sets")
		return fmt.Errorf("failed to sweep presence sets: %w", err)
	}

	logCtx.WithField("swept_count", swept).Info("Presence sweep task processed successfully")
	return nil
}
