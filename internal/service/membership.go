package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/repository"
)

// Action 表示对房间消息的访问类型。
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// MembershipService 是唯一的成员资格裁决点。
// REST 与 WebSocket 两条路径都经由它授权，避免各自重新推导检查逻辑。
type MembershipService struct {
	roomRepo repository.RoomRepository
}

// NewMembershipService 创建 MembershipService 实例。
func NewMembershipService(roomRepo repository.RoomRepository) *MembershipService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for MembershipService")
	}
	return &MembershipService{roomRepo: roomRepo}
}

// Authorize 校验用户对房间消息的访问权限。
// 纯检查，无副作用：房间不存在返回 ErrRoomNotFound，非成员返回 ErrNotMember。
// 当前读写使用同一条规则 (成员即可读写)，action 参数保留以便将来细分。
func (s *MembershipService) Authorize(ctx context.Context, userID, roomID uint, action Action) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"room_id": roomID,
		"action":  string(action),
	})

	// 1. 房间必须存在
	if _, err := s.roomRepo.FindByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Authorize: room not found")
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Authorize: repository error looking up room")
		return ErrInternalServer
	}

	// 2. 用户必须是成员
	isMember, err := s.roomRepo.IsMember(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Authorize: repository error checking membership")
		return ErrInternalServer
	}
	if !isMember {
		logCtx.Warn("Authorize: user is not a member")
		return ErrNotMember
	}

	logCtx.Debug("Authorize: access granted")
	return nil
}
