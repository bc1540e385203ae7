package dto

import "earnbuddy-chat/internal/domain"

// InboundFrame 表示客户端通过 WebSocket 发送的一帧消息。
// 服务端只信任 content / kind / attachment，发送者身份与时间戳一律由服务端填充。
type InboundFrame struct {
	Content    string             `json:"content"`
	Kind       string             `json:"kind,omitempty"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
}

// ErrorFrame 表示服务端对单个连接回送的错误帧。
// 仅发给出错的连接，不广播，也不关闭连接。
type ErrorFrame struct {
	Error string `json:"error"`
}

// PostMessageRequest 是 REST 发送消息的请求体。
type PostMessageRequest struct {
	Content    string             `json:"content"`
	Kind       string             `json:"kind"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
}

// MessageResponse 是单条消息创建成功的响应。
type MessageResponse struct {
	Message domain.Message `json:"message"`
}

// MessageListResponse 是历史消息查询的响应。
// NextBefore 指向本页最早一条消息，作为下一次翻页的游标。
type MessageListResponse struct {
	Messages   []domain.Message `json:"messages"`
	NextBefore string           `json:"nextBefore,omitempty"`
}
