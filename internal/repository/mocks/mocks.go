// Package mocks 提供 repository 接口的 testify Mock 实现，仅供测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"earnbuddy-chat/internal/domain"
)

// UserRepository 是 repository.UserRepository 的 Mock。
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// RoomRepository 是 repository.RoomRepository 的 Mock。
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	args := m.Called(ctx, id)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *RoomRepository) FindByInviteCode(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepository) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepository) AddMember(ctx context.Context, roomID, userID uint) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepository) MemberIDs(ctx context.Context, roomID uint) ([]uint, error) {
	args := m.Called(ctx, roomID)
	ids, _ := args.Get(0).([]uint)
	return ids, args.Error(1)
}

func (m *RoomRepository) ListByMember(ctx context.Context, userID uint) ([]domain.Room, error) {
	args := m.Called(ctx, userID)
	rooms, _ := args.Get(0).([]domain.Room)
	return rooms, args.Error(1)
}

func (m *RoomRepository) TouchActivity(ctx context.Context, roomID uint, at time.Time, messageDelta int64) error {
	args := m.Called(ctx, roomID, at, messageDelta)
	return args.Error(0)
}

// MessageRepository 是 repository.MessageRepository 的 Mock。
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepository) ListByRoom(ctx context.Context, roomID uint, limit int, before *domain.Cursor) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, limit, before)
	messages, _ := args.Get(0).([]domain.Message)
	return messages, args.Error(1)
}

// PresenceRepository 是 repository.PresenceRepository 的 Mock。
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) MarkOnline(ctx context.Context, roomID, userID uint, ttl time.Duration) error {
	args := m.Called(ctx, roomID, userID, ttl)
	return args.Error(0)
}

func (m *PresenceRepository) MarkOffline(ctx context.Context, roomID, userID uint) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *PresenceRepository) OnlineMembers(ctx context.Context, roomID uint) ([]uint, error) {
	args := m.Called(ctx, roomID)
	ids, _ := args.Get(0).([]uint)
	return ids, args.Error(1)
}

func (m *PresenceRepository) SweepEmpty(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
