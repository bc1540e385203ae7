package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/dto"
	"earnbuddy-chat/internal/service"
)

// MessageBroadcaster 把一条已落库的消息推给其房间内的在线连接。
// 由 hub.Hub 实现；为 nil 时 REST 发送只落库不推送。
type MessageBroadcaster interface {
	BroadcastPersisted(msg *domain.Message)
}

// MessageHandler 封装了与房间消息相关的 HTTP 处理逻辑
type MessageHandler struct {
	messageService *service.MessageService // 依赖 MessageService
	broadcaster    MessageBroadcaster      // 可选，REST 发出的消息同步推给 WebSocket 订阅者
}

// NewMessageHandler 创建 MessageHandler 实例
func NewMessageHandler(messageService *service.MessageService, broadcaster MessageBroadcaster) *MessageHandler {
	return &MessageHandler{messageService: messageService, broadcaster: broadcaster}
}

// History 处理拉取房间历史消息的请求 (GET /api/rooms/:roomId/messages)。
// 支持 limit 与 before 游标两个查询参数，按时间升序返回最新一页。
func (h *MessageHandler) History(c *gin.Context) {
	// 1. 获取认证用户 ID
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.History: User ID not available, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// 2. 解析路径中的房间 ID
	roomID, err := roomIDParam(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.History: Invalid room ID param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	// 3. 解析查询参数。limit 非法时回退默认值，before 的合法性交给 Service 校验
	limit := service.DefaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			logCtx.WithField("limit", limitStr).Warn("Handler.History: Invalid limit param, using default")
		} else {
			limit = parsed
		}
	}
	before := c.Query("before")

	// 4. 调用 Service 层查询历史
	messages, nextBefore, err := h.messageService.History(c.Request.Context(), userID, roomID, limit, before)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.History: Failed to fetch history via service")
		HandleServiceError(c, err)
		return
	}

	// 5. 成功响应。messages 始终为数组，空房间返回 []
	c.JSON(http.StatusOK, dto.MessageListResponse{
		Messages:   messages,
		NextBefore: nextBefore,
	})
}

// Post 处理通过 REST 发送消息的请求 (POST /api/rooms/:roomId/messages)。
// 与 WebSocket 入站帧走同一条 Service 路径，持久化后会广播给房间内的在线连接。
func (h *MessageHandler) Post(c *gin.Context) {
	// 1. 获取认证用户 ID
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Post: User ID not available, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// 2. 解析路径中的房间 ID
	roomID, err := roomIDParam(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Post: Invalid room ID param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	// 3. 绑定请求体
	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.Post: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: malformed message body"})
		return
	}

	// 4. 调用 Service 层发送消息
	msg, err := h.messageService.Post(c.Request.Context(), userID, roomID, req.Content, req.Kind, req.Attachment)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.Post: Failed to post message via service")
		HandleServiceError(c, err)
		return
	}

	// 5. 推给房间内在线的 WebSocket 连接，再返回完整消息
	if h.broadcaster != nil {
		h.broadcaster.BroadcastPersisted(msg)
	}
	logCtx.WithField("message_id", msg.ID).Info("Handler.Post: Message posted successfully")
	c.JSON(http.StatusCreated, dto.MessageResponse{Message: *msg})
}
