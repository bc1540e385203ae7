package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/repository"
	"earnbuddy-chat/internal/repository/mocks"
	"earnbuddy-chat/internal/service"
)

func newRoomServiceForTest(t *testing.T) (*service.RoomService, *mocks.RoomRepository, *mocks.PresenceRepository) {
	t.Helper()
	mockRoomRepo := new(mocks.RoomRepository)
	mockPresenceRepo := new(mocks.PresenceRepository)
	membership := service.NewMembershipService(mockRoomRepo)
	return service.NewRoomService(mockRoomRepo, mockPresenceRepo, membership), mockRoomRepo, mockPresenceRepo
}

func TestRoomService_CreateRoom_Success(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, _ := newRoomServiceForTest(t)
	ctx := context.Background()

	// 邀请码查重一次通过
	mockRoomRepo.On("IsInviteCodeExists", ctx, mock.MatchedBy(func(code string) bool {
		return len(code) == 6
	})).Return(false, nil).Once()

	mockRoomRepo.On("Save", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Equal(t, "general", room.Name)
		assert.Equal(t, uint(42), room.CreatorID)
		assert.Len(t, room.InviteCode, 6, "邀请码固定 6 位")
		return true
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 3
		}).
		Return(nil).
		Once()

	// 创建者自动入会
	mockRoomRepo.On("AddMember", ctx, uint(3), uint(42)).Return(nil).Once()

	// Act
	room, err := svc.CreateRoom(ctx, 42, "general", "chit chat", false)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, uint(3), room.ID)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RetriesOnInviteCodeCollision(t *testing.T) {
	// Arrange: 第一次生成的邀请码已存在，第二次通过
	svc, mockRoomRepo, _ := newRoomServiceForTest(t)
	ctx := context.Background()

	mockRoomRepo.On("IsInviteCodeExists", ctx, mock.AnythingOfType("string")).Return(true, nil).Once()
	mockRoomRepo.On("IsInviteCodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.AnythingOfType("*domain.Room")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Room).ID = 3 }).
		Return(nil).
		Once()
	mockRoomRepo.On("AddMember", ctx, uint(3), uint(42)).Return(nil).Once()

	// Act
	room, err := svc.CreateRoom(ctx, 42, "general", "", false)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, room)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_JoinRoom_Idempotent(t *testing.T) {
	// Arrange: 用户已是成员，重复加入视为成功
	svc, mockRoomRepo, _ := newRoomServiceForTest(t)
	ctx := context.Background()

	room := &domain.Room{ID: 3, Name: "general", InviteCode: "ABC123"}
	mockRoomRepo.On("FindByInviteCode", ctx, "ABC123").Return(room, nil).Once()
	mockRoomRepo.On("AddMember", ctx, uint(3), uint(42)).Return(repository.ErrDuplicateEntry).Once()

	// Act
	joined, err := svc.JoinRoom(ctx, 42, "ABC123")

	// Assert
	assert.NoError(t, err, "重复加入应幂等成功")
	assert.Equal(t, room, joined)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_JoinRoom_InvalidInviteCode(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, _ := newRoomServiceForTest(t)
	ctx := context.Background()
	mockRoomRepo.On("FindByInviteCode", ctx, "NOPE00").Return(nil, repository.ErrRoomNotFound).Once()

	// Act
	joined, err := svc.JoinRoom(ctx, 42, "NOPE00")

	// Assert
	assert.ErrorIs(t, err, service.ErrInvalidInviteCode)
	assert.Nil(t, joined)
}

func TestRoomService_Members_RequiresMembership(t *testing.T) {
	// Arrange: 请求成员列表的用户自身不是成员
	svc, mockRoomRepo, _ := newRoomServiceForTest(t)
	ctx := context.Background()
	mockRoomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	mockRoomRepo.On("IsMember", ctx, uint(3), uint(99)).Return(false, nil).Once()

	// Act
	ids, err := svc.Members(ctx, 99, 3)

	// Assert
	assert.ErrorIs(t, err, service.ErrNotMember)
	assert.Nil(t, ids)
	mockRoomRepo.AssertNotCalled(t, "MemberIDs")
}

func TestRoomService_OnlineMembers(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, mockPresenceRepo := newRoomServiceForTest(t)
	ctx := context.Background()
	mockRoomRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{ID: 3}, nil).Once()
	mockRoomRepo.On("IsMember", ctx, uint(3), uint(42)).Return(true, nil).Once()
	mockPresenceRepo.On("OnlineMembers", ctx, uint(3)).Return([]uint{42, 7}, nil).Once()

	// Act
	ids, err := svc.OnlineMembers(ctx, 42, 3)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []uint{42, 7}, ids)
	mockPresenceRepo.AssertExpectations(t)
}
