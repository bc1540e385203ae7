package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/dto"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Stream 维护一个房间的实时消息视图：
// 先通过 REST 拉取一致的历史快照，再打开 WebSocket 追加后续推送。
// REST 快照与相邻的 socket 推送可能重叠，按消息 ID 去重。
type Stream struct {
	api    MessageAPI
	dialer *websocket.Dialer
	wsURL  string // 完整的 ws://.../ws/rooms/{roomId}/stream?token=...
	roomID uint

	pageLimit int

	mu       sync.Mutex
	conn     *websocket.Conn
	open     bool
	closed   bool
	messages []domain.Message
	seen     map[uint]bool // 已渲染的消息 ID

	// OnMessage 在每条新消息追加后回调 (持锁外调用)。可为 nil。
	OnMessage func(msg domain.Message)
	// OnError 在收到服务端错误帧或连接级错误时回调。可为 nil。
	OnError func(err error)

	done chan struct{}
	log  *logrus.Entry
}

// NewStream 创建一个房间的流式控制器。
// baseURL 形如 http://host:port，token 同 REST 认证使用的 JWT。
func NewStream(api MessageAPI, baseURL, token string, roomID uint) (*Stream, error) {
	if api == nil {
		panic("MessageAPI cannot be nil for Stream")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = fmt.Sprintf("/ws/rooms/%d/stream", roomID)
	// 浏览器升级请求无法携带自定义 header，token 走查询参数
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()

	return &Stream{
		api:       api,
		dialer:    websocket.DefaultDialer,
		wsURL:     parsed.String(),
		roomID:    roomID,
		pageLimit: 50,
		seen:      make(map[uint]bool),
		done:      make(chan struct{}),
		log:       logrus.WithFields(logrus.Fields{"component": "stream", "room_id": roomID}),
	}, nil
}

// Open 加载初始历史快照并建立 socket 连接。
// 历史加载失败直接返回错误；连接断开后由后台循环按指数退避自动重连。
func (s *Stream) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()

	// 1. REST 历史快照先行，保证 socket 开始推送前有一致的基线
	history, _, err := s.api.History(ctx, s.roomID, s.pageLimit, "")
	if err != nil {
		s.log.WithError(err).Warn("Initial history load failed")
		return err
	}
	s.mu.Lock()
	for _, msg := range history {
		if !s.seen[msg.ID] {
			s.seen[msg.ID] = true
			s.messages = append(s.messages, msg)
		}
	}
	s.mu.Unlock()
	s.log.WithField("count", len(history)).Info("Initial history loaded")

	// 2. 建立连接
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket dial failed")
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.open = true
	s.mu.Unlock()
	s.log.Info("WebSocket connected")

	// 3. 读循环 + 自动重连
	go s.readLoop(ctx, conn)
	return nil
}

// readLoop 消费 socket 推送，连接断开后转入重连流程。
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.open = false
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return // 主动关闭，不重连
			}
			s.log.WithError(err).Warn("WebSocket read failed, scheduling reconnect")
			s.notifyError(fmt.Errorf("%w: %v", ErrNotConnected, err))
			s.reconnect(ctx)
			return
		}
		s.handleFrame(raw)
	}
}

// handleFrame 解析一帧服务端推送。
// 错误帧回调 OnError；消息帧按 ID 去重后按到达顺序追加。
func (s *Stream) handleFrame(raw []byte) {
	var errFrame dto.ErrorFrame
	if err := json.Unmarshal(raw, &errFrame); err == nil && errFrame.Error != "" {
		s.log.WithField("server_error", errFrame.Error).Warn("Server rejected a frame")
		s.notifyError(fmt.Errorf("%w: %s", ErrValidation, errFrame.Error))
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == 0 {
		s.log.Warn("Dropping unrecognized frame from server")
		return
	}

	s.mu.Lock()
	if s.seen[msg.ID] {
		// REST 快照和 socket 推送重叠，丢弃重复渲染
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = true
	s.messages = append(s.messages, msg)
	callback := s.OnMessage
	s.mu.Unlock()

	if callback != nil {
		callback(msg)
	}
}

// reconnect 按指数退避重试连接，成功后重拉历史尾部补齐断线期间的空洞。
func (s *Stream) reconnect(ctx context.Context) {
	delay := reconnectBaseDelay
	for attempt := 1; ; attempt++ {
		// 加抖动避免同时断线的客户端齐步重连
		jitter := time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-time.After(delay + jitter):
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}

		s.log.WithField("attempt", attempt).Info("Attempting to reconnect...")
		conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
		if err != nil {
			s.log.WithError(err).WithField("attempt", attempt).Warn("Reconnect failed")
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.open = true
		s.mu.Unlock()
		s.log.WithField("attempt", attempt).Info("Reconnected")

		// 断线期间的消息不会被推送过来，重拉历史尾部补齐。
		// 去重逻辑保证重叠部分不会二次渲染。
		s.resyncTail(ctx)

		go s.readLoop(ctx, conn)
		return
	}
}

// resyncTail 重拉最近一页历史，把断线窗口内漏掉的消息补进列表。
func (s *Stream) resyncTail(ctx context.Context) {
	tail, _, err := s.api.History(ctx, s.roomID, s.pageLimit, "")
	if err != nil {
		s.log.WithError(err).Warn("Tail resync failed after reconnect")
		return
	}

	appended := 0
	s.mu.Lock()
	callback := s.OnMessage
	var fresh []domain.Message
	for _, msg := range tail {
		if !s.seen[msg.ID] {
			s.seen[msg.ID] = true
			s.messages = append(s.messages, msg)
			fresh = append(fresh, msg)
			appended++
		}
	}
	s.mu.Unlock()

	if callback != nil {
		for _, msg := range fresh {
			callback(msg)
		}
	}
	s.log.WithField("appended", appended).Info("Tail resync complete")
}

// Send 通过 socket 发送一条消息。
// 连接未打开时返回 ErrNotConnected 而不是排队 (不做离线缓冲)。
func (s *Stream) Send(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	if !s.open || s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.WriteJSON(dto.InboundFrame{Content: content}); err != nil {
		return fmt.Errorf("client: socket send failed: %w", err)
	}
	return nil
}

// Messages 返回当前列表的副本 (历史快照 + 按到达顺序追加的推送)。
func (s *Stream) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]domain.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

// Connected 报告 socket 当前是否可用。
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close 发送正常关闭帧并停止重连。
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.open = false
	s.mu.Unlock()
	close(s.done)

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

func (s *Stream) notifyError(err error) {
	s.mu.Lock()
	callback := s.OnError
	s.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}
