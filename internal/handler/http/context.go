package http

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"earnbuddy-chat/internal/middleware"
)

// currentUserID 从 Gin 上下文取出认证中间件写入的用户 ID。
// 中间件缺失或类型不符属于配置错误，返回 error 由调用方映射为 401/500。
func currentUserID(c *gin.Context) (uint, error) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, fmt.Errorf("user id not found in context")
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		return 0, fmt.Errorf("user id in context is not uint")
	}
	return userID, nil
}

// roomIDParam 解析 URL 中的 :roomId 参数。
func roomIDParam(c *gin.Context) (uint, error) {
	roomIDStr := c.Param("roomId")
	roomID, err := strconv.ParseUint(roomIDStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid room id format: %q", roomIDStr)
	}
	return uint(roomID), nil
}
