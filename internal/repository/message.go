package repository

import (
	"context"

	"earnbuddy-chat/internal/domain"
)

// MessageRepository 定义了聊天消息的追加与按房间查询。
// 消息是只追加的：接口有意不提供任何更新或删除操作。
type MessageRepository interface {
	// Append 持久化一条新消息。ID 与 CreatedAt 由存储层分配并回填到传入对象。
	Append(ctx context.Context, msg *domain.Message) error

	// ListByRoom 返回房间内位于 before 游标之前 (含) 的最近 limit 条消息，
	// 按 (created_at, id) 升序排列以便直接展示。
	// before 为 nil 时从最新一条开始。
	ListByRoom(ctx context.Context, roomID uint, limit int, before *domain.Cursor) ([]domain.Message, error)
}
