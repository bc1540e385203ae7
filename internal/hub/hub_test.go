package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/dto"
	"earnbuddy-chat/internal/repository/mocks"
	"earnbuddy-chat/internal/service"
)

// newHubForTest 组装一个依赖 Mock 仓库的 Hub，presence 降级为不记录。
func newHubForTest(t *testing.T) (*Hub, *mocks.MessageRepository, *mocks.UserRepository, *mocks.RoomRepository) {
	t.Helper()
	mockMessageRepo := new(mocks.MessageRepository)
	mockUserRepo := new(mocks.UserRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	membership := service.NewMembershipService(mockRoomRepo)
	messageService := service.NewMessageService(mockMessageRepo, mockUserRepo, membership, nil, 0)
	return NewHub(messageService, nil), mockMessageRepo, mockUserRepo, mockRoomRepo
}

// newClientForTest 构造一个只有 send 通道的客户端，不带底层连接。
func newClientForTest(h *Hub, roomID, userID uint) *Client {
	return &Client{hub: h, roomID: roomID, userID: userID, send: make(chan []byte, 256)}
}

// receive 从客户端的 send 通道取一条消息，超时返回 nil。
func receive(c *Client, timeout time.Duration) []byte {
	select {
	case payload := <-c.send:
		return payload
	case <-time.After(timeout):
		return nil
	}
}

func TestHub_BroadcastFanOut(t *testing.T) {
	// Arrange: 房间 1 有三个连接，房间 2 有一个连接
	h, _, _, _ := newHubForTest(t)
	alice := newClientForTest(h, 1, 1)
	bob := newClientForTest(h, 1, 2)
	carol := newClientForTest(h, 1, 3)
	dave := newClientForTest(h, 2, 4)

	h.registerClient(alice)
	h.registerClient(bob)
	h.registerClient(carol)
	h.registerClient(dave)

	// Act: 向房间 1 广播
	payload := []byte(`{"id":1,"roomId":1,"content":"hi"}`)
	h.broadcast(1, payload, nil)

	// Assert: 房间 1 的全部连接收到，包括发送者；房间 2 一条不收
	assert.Equal(t, payload, receive(alice, time.Second))
	assert.Equal(t, payload, receive(bob, time.Second))
	assert.Equal(t, payload, receive(carol, time.Second))
	assert.Nil(t, receive(dave, 50*time.Millisecond), "其他房间的连接不应收到广播")
}

func TestHub_UnregisterRemovesFromRoom(t *testing.T) {
	// Arrange
	h, _, _, _ := newHubForTest(t)
	alice := newClientForTest(h, 1, 1)
	bob := newClientForTest(h, 1, 2)
	h.registerClient(alice)
	h.registerClient(bob)

	// Act: alice 断开后再广播
	h.unregisterClient(alice)
	payload := []byte(`{"content":"after"}`)
	h.broadcast(1, payload, nil)

	// Assert
	assert.Equal(t, payload, receive(bob, time.Second))
	// alice 的 send 通道已被 unregister 关闭
	_, open := <-alice.send
	assert.False(t, open, "注销的客户端 send 通道应被关闭")
}

func TestHub_HandleInbound_PersistsThenBroadcasts(t *testing.T) {
	// Arrange
	h, mockMessageRepo, mockUserRepo, mockRoomRepo := newHubForTest(t)
	alice := newClientForTest(h, 1, 42)
	bob := newClientForTest(h, 1, 7)
	h.registerClient(alice)
	h.registerClient(bob)

	mockRoomRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.Room{ID: 1}, nil).Once()
	mockRoomRepo.On("IsMember", mock.Anything, uint(1), uint(42)).Return(true, nil).Once()
	mockUserRepo.On("FindByID", mock.Anything, uint(42)).
		Return(&domain.User{ID: 42, Username: "alice"}, nil).
		Once()
	mockMessageRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) {
			msgArg := args.Get(1).(*domain.Message)
			msgArg.ID = 9
			msgArg.CreatedAt = time.Now()
		}).
		Return(nil).
		Once()

	// Act: 入站帧在主循环语义下同步处理
	h.handleInbound(HubMessage{
		Type:    "inbound",
		RoomID:  1,
		UserID:  42,
		Client:  alice,
		RawData: []byte(`{"content":"yo"}`),
	})

	// Assert: 发送者和同房间的其他连接都收到同一条持久化消息
	for _, c := range []*Client{alice, bob} {
		raw := receive(c, time.Second)
		require.NotNil(t, raw, "房间内的连接应收到广播")
		var msg domain.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, uint(9), msg.ID)
		assert.Equal(t, uint(42), msg.SenderID, "发送者身份由服务端填充")
		assert.Equal(t, "yo", msg.Content)
	}
	mockMessageRepo.AssertExpectations(t)
}

func TestHub_UnregisterClosesSendWithPendingMessages(t *testing.T) {
	// Arrange: 客户端的 send 通道里压着一条 WritePump 还没取走的消息
	h, _, _, _ := newHubForTest(t)
	alice := newClientForTest(h, 1, 1)
	h.registerClient(alice)
	alice.send <- []byte(`{"content":"pending"}`)

	// Act
	h.unregisterClient(alice)

	// Assert: 积压消息仍可取出，之后通道必须已关闭
	assert.Equal(t, []byte(`{"content":"pending"}`), <-alice.send)
	_, open := <-alice.send
	assert.False(t, open, "即使有积压消息，注销也应关闭 send 通道")

	// 重复注销不应二次关闭通道
	assert.NotPanics(t, func() { h.unregisterClient(alice) })
}

func TestHub_RestBroadcastGoesThroughRunLoop(t *testing.T) {
	// Arrange
	h, _, _, _ := newHubForTest(t)
	alice := newClientForTest(h, 1, 1)
	bob := newClientForTest(h, 1, 2)
	h.registerClient(alice)
	h.registerClient(bob)

	// Act: 主循环尚未启动，REST 路径的广播只应入队
	h.BroadcastPersisted(&domain.Message{ID: 5, RoomID: 1, SenderID: 1, Content: "via rest"})

	// Assert: 扇出不在调用方协程里直接发生
	assert.Nil(t, receive(alice, 50*time.Millisecond), "广播应由主循环串行执行，而非调用方协程")

	runExited := make(chan struct{})
	go func() {
		h.Run()
		close(runExited)
	}()

	// 主循环跑起来后，房间内全部连接收到同一条消息
	for _, c := range []*Client{alice, bob} {
		raw := receive(c, time.Second)
		require.NotNil(t, raw, "主循环应将入队的广播送达")
		var msg domain.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, uint(5), msg.ID)
		assert.Equal(t, "via rest", msg.Content)
	}

	h.Shutdown()
	select {
	case <-runExited:
	case <-time.After(time.Second):
		t.Fatal("Run 循环应在 Shutdown 后退出")
	}
}

func TestHub_ShutdownRejectsLateMessages(t *testing.T) {
	// Arrange: 主循环运行中，房间 1 有一个在线连接
	h, _, _, _ := newHubForTest(t)
	alice := newClientForTest(h, 1, 1)

	runExited := make(chan struct{})
	go func() {
		h.Run()
		close(runExited)
	}()

	require.True(t, h.QueueMessage(HubMessage{Type: "register", Client: alice, RoomID: 1, UserID: 1}))
	require.Eventually(t, func() bool {
		h.roomsMu.RLock()
		defer h.roomsMu.RUnlock()
		return len(h.rooms[1]) == 1
	}, time.Second, 10*time.Millisecond, "注册应被主循环处理")

	// Act
	h.Shutdown()
	select {
	case <-runExited:
	case <-time.After(time.Second):
		t.Fatal("Run 循环应在 Shutdown 后退出")
	}

	// Assert: 迟到的入站帧 (ReadPump 在连接断开前仍可能产生) 被丢弃而不是崩溃
	assert.NotPanics(t, func() {
		queued := h.QueueMessage(HubMessage{Type: "inbound", Client: alice, RoomID: 1, UserID: 1, RawData: []byte(`{"content":"late"}`)})
		assert.False(t, queued, "关停后的消息应被拒绝")
	})

	// 在线连接在关停时被清理
	_, open := <-alice.send
	assert.False(t, open, "关停应关闭在线客户端的 send 通道")

	// Shutdown 可重复调用
	assert.NotPanics(t, h.Shutdown)
}

func TestHub_HandleInbound_MalformedFrame(t *testing.T) {
	// Arrange
	h, mockMessageRepo, _, _ := newHubForTest(t)
	alice := newClientForTest(h, 1, 42)
	bob := newClientForTest(h, 1, 7)
	h.registerClient(alice)
	h.registerClient(bob)

	// Act: 非法 JSON
	h.handleInbound(HubMessage{
		Type:    "inbound",
		RoomID:  1,
		UserID:  42,
		Client:  alice,
		RawData: []byte(`{not json`),
	})

	// Assert: 只有出错的连接收到错误帧，不广播也不落库
	raw := receive(alice, time.Second)
	require.NotNil(t, raw)
	var errFrame dto.ErrorFrame
	require.NoError(t, json.Unmarshal(raw, &errFrame))
	assert.NotEmpty(t, errFrame.Error)

	assert.Nil(t, receive(bob, 50*time.Millisecond), "错误帧不应广播给其他连接")
	mockMessageRepo.AssertNotCalled(t, "Append")
}
