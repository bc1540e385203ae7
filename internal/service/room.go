package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/repository"
)

// RoomService 负责房间管理相关的业务逻辑。
// 消息核心只读取成员集合；成员增删 (加入/退出) 属于这里。
type RoomService struct {
	roomRepo     repository.RoomRepository
	presenceRepo repository.PresenceRepository
	membership   *MembershipService
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, presenceRepo repository.PresenceRepository, membership *MembershipService) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if membership == nil {
		panic("MembershipService cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo:     roomRepo,
		presenceRepo: presenceRepo,
		membership:   membership,
	}
}

// CreateRoom 创建一个新房间，创建者自动成为成员。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name, description string, isPrivate bool) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "room_name": name})

	if name == "" {
		return nil, fmt.Errorf("room name is required")
	}

	// 1. 生成唯一的邀请码
	inviteCode, err := s.generateUniqueInviteCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique invite code")
		return nil, ErrInternalServer
	}

	// 2. 保存房间
	room := &domain.Room{
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
		InviteCode:  inviteCode,
		IsPrivate:   isPrivate,
	}
	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save new room to database")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 3. 创建者自动入会
	if err := s.roomRepo.AddMember(ctx, room.ID, creatorID); err != nil && !errors.Is(err, repository.ErrDuplicateEntry) {
		logCtx.WithError(err).Error("Failed to add creator as room member")
		return nil, ErrInternalServer
	}

	logCtx.Info("Room created successfully")
	return room, nil
}

// JoinRoom 处理用户通过邀请码加入房间。重复加入视为幂等成功。
func (s *RoomService) JoinRoom(ctx context.Context, userID uint, inviteCode string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "invite_code": inviteCode})

	room, err := s.roomRepo.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("JoinRoom: invite code does not match any room")
			return nil, ErrInvalidInviteCode
		}
		logCtx.WithError(err).Error("JoinRoom: repository error")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	if err := s.roomRepo.AddMember(ctx, room.ID, userID); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Debug("JoinRoom: user already a member")
			return room, nil
		}
		logCtx.WithError(err).Error("JoinRoom: failed to add member")
		return nil, ErrInternalServer
	}

	logCtx.Info("User joined room successfully")
	return room, nil
}

// LeaveRoom 将用户从房间移除。
func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	if err := s.membership.Authorize(ctx, userID, roomID, ActionRead); err != nil {
		return err
	}
	if err := s.roomRepo.RemoveMember(ctx, roomID, userID); err != nil {
		logCtx.WithError(err).Error("LeaveRoom: failed to remove member")
		return ErrInternalServer
	}
	logCtx.Info("User left room")
	return nil
}

// ListRooms 返回用户加入的全部房间。
func (s *RoomService) ListRooms(ctx context.Context, userID uint) ([]domain.Room, error) {
	rooms, err := s.roomRepo.ListByMember(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("ListRooms: repository error")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// FindRoomByID 查找单个房间，供 Handler 校验使用。
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("FindRoomByID: repository error")
		return nil, ErrInternalServer
	}
	return room, nil
}

// Members 返回房间全部成员 ID，要求请求者本身是成员。
func (s *RoomService) Members(ctx context.Context, requesterID, roomID uint) ([]uint, error) {
	if err := s.membership.Authorize(ctx, requesterID, roomID, ActionRead); err != nil {
		return nil, err
	}
	ids, err := s.roomRepo.MemberIDs(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Members: repository error")
		return nil, ErrInternalServer
	}
	return ids, nil
}

// OnlineMembers 返回房间当前在线的成员 ID，要求请求者是成员。
func (s *RoomService) OnlineMembers(ctx context.Context, requesterID, roomID uint) ([]uint, error) {
	if err := s.membership.Authorize(ctx, requesterID, roomID, ActionRead); err != nil {
		return nil, err
	}
	if s.presenceRepo == nil {
		return nil, nil
	}
	ids, err := s.presenceRepo.OnlineMembers(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("OnlineMembers: presence error")
		return nil, ErrInternalServer
	}
	return ids, nil
}

// --- 私有辅助函数 ---

// generateUniqueInviteCode 生成唯一的邀请码
func (s *RoomService) generateUniqueInviteCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		exists, err := s.roomRepo.IsInviteCodeExists(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("invite_code", code).Error("Database error checking invite code uniqueness")
			return "", fmt.Errorf("database error checking invite code: %w", err)
		}
		if !exists {
			return code, nil
		}
		// code 已存在，重试
		logrus.WithField("invite_code", code).Warnf("Generated invite code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique invite code after %d attempts", maxAttempts)
}
