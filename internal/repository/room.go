package repository

import (
	"context"
	"time"

	"earnbuddy-chat/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 如果房间不存在，返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByInviteCode 根据邀请码查找房间。
	FindByInviteCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间信息。已存在 (基于 ID) 则更新，否则创建。
	Save(ctx context.Context, room *domain.Room) error

	// IsInviteCodeExists 检查邀请码是否已存在。
	IsInviteCodeExists(ctx context.Context, code string) (bool, error)

	// IsMember 检查用户是否为房间成员。成员资格是读写消息的唯一依据。
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)

	// AddMember 添加一条成员记录。重复加入返回 ErrDuplicateEntry。
	AddMember(ctx context.Context, roomID, userID uint) error

	// RemoveMember 移除成员记录。
	RemoveMember(ctx context.Context, roomID, userID uint) error

	// MemberIDs 返回房间全部成员的用户 ID。
	MemberIDs(ctx context.Context, roomID uint) ([]uint, error)

	// ListByMember 返回用户加入的全部房间。
	ListByMember(ctx context.Context, userID uint) ([]domain.Room, error)

	// TouchActivity 更新房间的最后活跃时间并累加消息计数。
	// 由后台任务在每条消息落库后调用。
	TouchActivity(ctx context.Context, roomID uint, at time.Time, messageDelta int64) error
}
