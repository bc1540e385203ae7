package websocket

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/hub"
	"earnbuddy-chat/internal/middleware"
	"earnbuddy-chat/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader   websocket.Upgrader         // WebSocket 升级器
	hub        *hub.Hub                   // 依赖 Hub
	membership *service.MembershipService // 升级前校验成员资格
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, membership *service.MembershipService) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if membership == nil {
		panic("MembershipService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true // 暂时允许所有
		},
	}

	return &WebSocketHandler{
		upgrader:   upgrader,
		hub:        h,
		membership: membership,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/rooms/{roomId}/stream，token 通过查询参数携带
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithField("handler", "websocket")

	// 1. 获取认证用户 ID (由 Auth 中间件设置)。
	//    认证失败必须在升级前以 HTTP 状态码拒绝，而不是先接受再报错。
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		logCtx.Warn("WS Handler: User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return // 返回 HTTP 错误，因为此时还未升级到 WebSocket
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		logCtx.Error("WS Handler: User ID in context is not uint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	logCtx = logCtx.WithField("user_id", userID)

	// 2. 获取并验证房间 ID (从 URL 参数)
	roomIDStr := c.Param("roomId")
	roomIDUint64, err := strconv.ParseUint(roomIDStr, 10, 32)
	if err != nil {
		logCtx.WithError(err).Warnf("WS Handler: Invalid room ID format: %s", roomIDStr)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID format"})
		return
	}
	roomID := uint(roomIDUint64)
	logCtx = logCtx.WithField("room_id", roomID)

	// 3. 成员资格校验：房间不存在 404，非成员 403，同样在升级前拒绝
	if err := h.membership.Authorize(c.Request.Context(), userID, roomID, service.ActionRead); err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			logCtx.WithError(err).Warn("WS Handler: Room not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		case errors.Is(err, service.ErrNotMember):
			logCtx.WithError(err).Warn("WS Handler: User is not a member of the room")
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
		default:
			logCtx.WithError(err).Error("WS Handler: Error checking room membership")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate room membership"})
		}
		return
	}
	logCtx.Debug("WS Handler: Membership validated")

	// 4. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，所以这里只需要记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 5. 创建 Client 并向 Hub 排队注册请求
	client := hub.NewClient(h.hub, conn, roomID, userID)

	registerMsg := hub.HubMessage{
		Type:   "register",
		Client: client,
		RoomID: client.RoomID(),
		UserID: client.UserID(),
	}
	if !h.hub.QueueMessage(registerMsg) {
		// Hub 的通道满了，注册失败。连接已升级，只能直接关闭
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	logCtx.Info("WS Handler: Client registration request queued to Hub")

	// 6. 启动客户端的读写 goroutine。
	// 此后通信由 client 的 ReadPump / WritePump 接管，本函数返回。
	go client.Run()
}
