package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"earnbuddy-chat/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现。
// 消息表只追加：总顺序由数据库自增 ID 与 created_at 共同给出，
// 不需要额外的应用层锁。
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Append 实现消息追加。ID 与 CreatedAt 由 GORM/数据库分配并回填。
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: append message for room %d: %w", msg.RoomID, err)
	}
	return nil
}

// ListByRoom 实现按房间的 keyset 分页查询。
// 先按 (created_at, id) 降序取游标之前 (含) 的 limit 条，再原地反转为升序，
// 这样返回的就是"最近的一页"且可以直接展示。
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID uint, limit int, before *domain.Cursor) ([]domain.Message, error) {
	var messages []domain.Message

	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if before != nil {
		// 游标语义为"位于该位置或更早"，因此同时间戳时用 id <= 保持包含
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id <= ?)",
			before.CreatedAt, before.CreatedAt, before.ID,
		)
	}

	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list messages for room %d: %w", roomID, err)
	}

	// 反转为升序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
