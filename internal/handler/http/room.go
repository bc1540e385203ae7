package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService // 依赖 RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=500"`
	IsPrivate   bool   `json:"is_private"`
}

// CreateRoomResponse 定义创建房间成功的响应结构体
type CreateRoomResponse struct {
	Message    string `json:"message"`
	RoomID     uint   `json:"room_id"`
	InviteCode string `json:"invite_code"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	// 1. 从 Gin 上下文中获取认证用户 ID
	//    这需要 Auth 中间件已经运行并设置了 "user_id"
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: User ID not available, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 绑定请求体
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: name is required (1-100 chars)"})
		return
	}

	// 3. 调用 Service 层创建房间
	newRoom, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name, req.Description, req.IsPrivate)
	if err != nil {
		logCtx.WithError(err).Error("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithFields(logrus.Fields{"room_id": newRoom.ID, "invite_code": newRoom.InviteCode}).Info("Handler.CreateRoom: Room created successfully")
	c.JSON(http.StatusCreated, CreateRoomResponse{
		Message:    "Room created successfully",
		RoomID:     newRoom.ID,
		InviteCode: newRoom.InviteCode,
	})
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	InviteCode string `json:"invite_code" binding:"required,len=6"` // 邀请码固定 6 位
}

// JoinRoomResponse 定义加入房间成功的响应结构体
type JoinRoomResponse struct {
	Message string `json:"message"`
	RoomID  uint   `json:"room_id"`
}

// JoinRoom 处理用户通过邀请码加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	// 1. 获取认证用户 ID
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.JoinRoom: User ID not available.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 绑定请求体中的邀请码
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: invite_code is required"})
		return
	}
	logCtx = logCtx.WithField("invite_code", req.InviteCode)

	// 3. 调用 Service 层处理加入房间逻辑
	joinedRoom, err := h.roomService.JoinRoom(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to join room via service")
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithField("room_id", joinedRoom.ID).Info("Handler.JoinRoom: User joined room successfully")
	c.JSON(http.StatusOK, JoinRoomResponse{
		Message: "Joined room successfully",
		RoomID:  joinedRoom.ID,
	})
}

// LeaveRoom 处理用户退出房间的请求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.LeaveRoom: User ID not available.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID, err := roomIDParam(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.LeaveRoom: Invalid room ID param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	if err := h.roomService.LeaveRoom(c.Request.Context(), userID, roomID); err != nil {
		logCtx.WithError(err).Warn("Handler.LeaveRoom: Failed to leave room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.Info("Handler.LeaveRoom: User left room successfully")
	c.JSON(http.StatusOK, gin.H{"message": "Left room successfully"})
}

// RoomSummary 是房间列表接口返回的单个房间信息
type RoomSummary struct {
	RoomID       uint   `json:"room_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsPrivate    bool   `json:"is_private"`
	MessageCount int64  `json:"message_count"`
	LastActive   string `json:"last_active"`
}

// ListRooms 返回当前用户已加入的房间列表
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.ListRooms: User ID not available.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	rooms, err := h.roomService.ListRooms(c.Request.Context(), userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Handler.ListRooms: Failed to list rooms via service")
		HandleServiceError(c, err)
		return
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, RoomSummary{
			RoomID:       room.ID,
			Name:         room.Name,
			Description:  room.Description,
			IsPrivate:    room.IsPrivate,
			MessageCount: room.MessageCount,
			LastActive:   room.LastActive.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": summaries})
}

// Members 返回房间成员的用户 ID 列表（仅限成员访问）
func (h *RoomHandler) Members(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Members: User ID not available.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID, err := roomIDParam(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Members: Invalid room ID param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	memberIDs, err := h.roomService.Members(c.Request.Context(), userID, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.Members: Failed to fetch members via service")
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "members": memberIDs})
}

// Presence 返回房间当前在线成员的用户 ID 列表（仅限成员访问）
func (h *RoomHandler) Presence(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Presence: User ID not available.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID, err := roomIDParam(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Presence: Invalid room ID param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	onlineIDs, err := h.roomService.OnlineMembers(c.Request.Context(), userID, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.Presence: Failed to fetch online members via service")
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "online": onlineIDs})
}
