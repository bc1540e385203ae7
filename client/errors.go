package client

import "errors"

// 客户端侧的错误分级。
// Transient 类错误 (网络/超时) 不在此列，原样向上传递，由调用方决定重试。
var (
	ErrUnauthenticated = errors.New("client: credential missing or rejected")
	ErrForbidden       = errors.New("client: not a member of this room")
	ErrNotFound        = errors.New("client: room not found")
	ErrValidation      = errors.New("client: request rejected by server validation")
	ErrNotConnected    = errors.New("client: socket is not connected")
	ErrStopped         = errors.New("client: controller already stopped")
)
