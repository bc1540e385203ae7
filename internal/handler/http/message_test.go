package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/dto"
	httpHandler "earnbuddy-chat/internal/handler/http"
	"earnbuddy-chat/internal/middleware"
	"earnbuddy-chat/internal/repository"
	"earnbuddy-chat/internal/repository/mocks"
	"earnbuddy-chat/internal/service"
)

// fakeAuth 在测试中替代 JWT 中间件，直接注入认证用户 ID。
func fakeAuth(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Next()
	}
}

// newMessageRouter 组装一个带 Mock 仓库的消息路由。
func newMessageRouter(t *testing.T, userID uint) (*gin.Engine, *mocks.MessageRepository, *mocks.UserRepository, *mocks.RoomRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockMessageRepo := new(mocks.MessageRepository)
	mockUserRepo := new(mocks.UserRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	membership := service.NewMembershipService(mockRoomRepo)
	messageService := service.NewMessageService(mockMessageRepo, mockUserRepo, membership, nil, 1024)
	handler := httpHandler.NewMessageHandler(messageService, nil)

	router := gin.New()
	rooms := router.Group("/api/rooms").Use(fakeAuth(userID))
	{
		rooms.GET("/:roomId/messages", handler.History)
		rooms.POST("/:roomId/messages", handler.Post)
	}
	return router, mockMessageRepo, mockUserRepo, mockRoomRepo
}

func TestMessageHandler_History_Success(t *testing.T) {
	// Arrange: alice 是房间 1 的成员
	router, mockMessageRepo, _, mockRoomRepo := newMessageRouter(t, 42)
	mockRoomRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.Room{ID: 1}, nil).Once()
	mockRoomRepo.On("IsMember", mock.Anything, uint(1), uint(42)).Return(true, nil).Once()

	stored := []domain.Message{
		{ID: 1, RoomID: 1, SenderID: 42, SenderName: "alice", Content: "hi", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: 2, RoomID: 1, SenderID: 7, SenderName: "bob", Content: "yo", CreatedAt: time.Now()},
	}
	mockMessageRepo.On("ListByRoom", mock.Anything, uint(1), 2, (*domain.Cursor)(nil)).
		Return(stored, nil).
		Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/1/messages?limit=2", nil)
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.MessageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "hi", resp.Messages[0].Content, "消息按时间升序返回")
	assert.NotEmpty(t, resp.NextBefore, "整页结果应带下一页游标")
}

func TestMessageHandler_History_NotMember(t *testing.T) {
	// Arrange: carol 不是房间 1 的成员
	router, mockMessageRepo, _, mockRoomRepo := newMessageRouter(t, 99)
	mockRoomRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.Room{ID: 1}, nil).Once()
	mockRoomRepo.On("IsMember", mock.Anything, uint(1), uint(99)).Return(false, nil).Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/1/messages", nil)
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusForbidden, w.Code, "非成员读历史应返回 403")
	mockMessageRepo.AssertNotCalled(t, "ListByRoom")
}

func TestMessageHandler_History_InvalidRoomID(t *testing.T) {
	router, _, _, _ := newMessageRouter(t, 42)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/abc/messages", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessageHandler_Post_Success(t *testing.T) {
	// Arrange
	router, mockMessageRepo, mockUserRepo, mockRoomRepo := newMessageRouter(t, 42)
	mockRoomRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.Room{ID: 1}, nil).Once()
	mockRoomRepo.On("IsMember", mock.Anything, uint(1), uint(42)).Return(true, nil).Once()
	mockUserRepo.On("FindByID", mock.Anything, uint(42)).
		Return(&domain.User{ID: 42, Username: "alice"}, nil).
		Once()
	mockMessageRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) {
			msgArg := args.Get(1).(*domain.Message)
			msgArg.ID = 55
			msgArg.CreatedAt = time.Now()
		}).
		Return(nil).
		Once()

	// Act: body 中不带发送者字段，身份一律来自认证上下文
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/1/messages",
		strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint(55), resp.Message.ID)
	assert.Equal(t, uint(42), resp.Message.SenderID, "发送者由服务端从认证身份填充")
	assert.Equal(t, "alice", resp.Message.SenderName)
}

func TestMessageHandler_Post_EmptyBody(t *testing.T) {
	// Arrange
	router, mockMessageRepo, _, mockRoomRepo := newMessageRouter(t, 42)
	mockRoomRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.Room{ID: 1}, nil).Once()
	mockRoomRepo.On("IsMember", mock.Anything, uint(1), uint(42)).Return(true, nil).Once()

	// Act: 正文与附件都为空
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/1/messages",
		strings.NewReader(`{"content":""}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockMessageRepo.AssertNotCalled(t, "Append")
}

func TestMessageHandler_Post_RoomNotFound(t *testing.T) {
	// Arrange
	router, _, _, mockRoomRepo := newMessageRouter(t, 42)
	mockRoomRepo.On("FindByID", mock.Anything, uint(404)).
		Return(nil, repository.ErrRoomNotFound).
		Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/404/messages",
		strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusNotFound, w.Code)
}
