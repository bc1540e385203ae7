package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).First(&roomData, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &roomData, nil
}

// FindByInviteCode 实现根据邀请码查找房间
func (r *GormRoomRepository) FindByInviteCode(ctx context.Context, code string) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).Where("invite_code = ?", code).First(&roomData).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by invite code '%s': %w", code, err)
	}
	return &roomData, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, roomData *domain.Room) error {
	err := r.db.WithContext(ctx).Save(roomData).Error
	if err != nil {
		// 唯一约束检查 (MySQL 1062)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, invite_code: %s): %w", roomData.ID, roomData.InviteCode, err)
	}
	return nil
}

// IsInviteCodeExists 实现检查邀请码是否存在
func (r *GormRoomRepository) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("invite_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by invite code '%s': %w", code, err)
	}
	return count > 0, nil
}

// IsMember 实现成员资格检查
func (r *GormRoomRepository) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: check membership (room %d, user %d): %w", roomID, userID, err)
	}
	return count > 0, nil
}

// AddMember 实现添加成员记录
func (r *GormRoomRepository) AddMember(ctx context.Context, roomID, userID uint) error {
	member := domain.RoomMember{RoomID: roomID, UserID: userID}
	err := r.db.WithContext(ctx).Create(&member).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: add member (room %d, user %d): %w", roomID, userID, err)
	}
	return nil
}

// RemoveMember 实现移除成员记录
func (r *GormRoomRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.RoomMember{}).Error
	if err != nil {
		return fmt.Errorf("gorm: remove member (room %d, user %d): %w", roomID, userID, err)
	}
	return nil
}

// MemberIDs 实现查询房间全部成员 ID
func (r *GormRoomRepository) MemberIDs(ctx context.Context, roomID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list member ids for room %d: %w", roomID, err)
	}
	return ids, nil
}

// ListByMember 实现查询用户加入的全部房间
func (r *GormRoomRepository) ListByMember(ctx context.Context, userID uint) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.last_active DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rooms for user %d: %w", userID, err)
	}
	return rooms, nil
}

// TouchActivity 实现活跃时间与消息计数的原子更新
func (r *GormRoomRepository) TouchActivity(ctx context.Context, roomID uint, at time.Time, messageDelta int64) error {
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"last_active":   at,
			"message_count": gorm.Expr("message_count + ?", messageDelta),
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: touch activity for room %d: %w", roomID, err)
	}
	return nil
}
