package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/dto"
	"earnbuddy-chat/internal/repository"
	"earnbuddy-chat/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// 在线状态集合的过期时间，由注册时刷新
	presenceTTL = 2 * time.Minute
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "inbound", "persisted"
	RoomID  uint    // 房间 ID
	UserID  uint    // 来源用户 ID
	Client  *Client // 消息关联的连接
	RawData []byte  // inbound 的原始 WebSocket 帧，或 persisted 的已序列化消息
}

// Hub 维护按房间组织的活跃连接集合，并串行处理入站消息。
// 入站帧在主循环内同步走 持久化 -> 广播，因此单个房间内
// 所有订阅者观察到的消息顺序与落库顺序一致。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件。
	// 永不关闭：ReadPump 等生产者可能在关停后仍然发送，
	// 停机通过 done 通知，滞留的消息随 Hub 一起被回收。
	messageChan chan HubMessage

	// 关停信号，Shutdown 时关闭
	done         chan struct{}
	shutdownOnce sync.Once

	// 连接集合，按 RoomID 组织: map[roomID]map[*Client]bool
	rooms map[uint]map[*Client]bool
	// 保护 rooms map 的读写锁
	roomsMu sync.RWMutex

	// 注入的依赖
	messageService *service.MessageService
	presenceRepo   repository.PresenceRepository // 可为 nil，在线状态降级为不记录
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(messageService *service.MessageService, presenceRepo repository.PresenceRepository) *Hub {
	if messageService == nil {
		panic("MessageService cannot be nil for Hub")
	}
	return &Hub{
		messageChan:    make(chan HubMessage, 512),
		done:           make(chan struct{}),
		rooms:          make(map[uint]map[*Client]bool),
		messageService: messageService,
		presenceRepo:   presenceRepo,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行；Shutdown 被调用时退出。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case <-h.done:
			h.closeAllClients()
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "inbound":
				// 入站帧必须在主循环内同步处理：
				// 广播顺序 == 持久化顺序是本服务的排序保证
				h.handleInbound(msg)
			case "persisted":
				// REST 路径已落库的消息，在主循环内串行广播，
				// 与 inbound 共享同一个单写者，保证全房间顺序一致
				h.broadcast(msg.RoomID, msg.RawData, nil)
			default:
				log.Warnf("Hub: received unknown message type: %s from user %d in room %d", msg.Type, msg.UserID, msg.RoomID)
			}
		}
	}
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	userID := client.UserID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
		"action":  "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
		logCtx.Info("Client list created for new room")
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	// 在线状态写入放到后台，失败只记日志
	if h.presenceRepo != nil {
		go func() {
			if err := h.presenceRepo.MarkOnline(context.Background(), roomID, userID, presenceTTL); err != nil {
				logCtx.WithError(err).Warn("Failed to mark user online")
			}
		}()
	}
}

// unregisterClient 处理客户端注销逻辑
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	roomID := client.RoomID()
	userID := client.UserID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
		"action":  "unregisterClient",
	})

	h.roomsMu.Lock()
	if roomClients, roomExists := h.rooms[roomID]; roomExists {
		if _, clientExists := roomClients[client]; clientExists {
			delete(roomClients, client)

			// 关闭此客户端的 send 通道，这将导致其 WritePump 退出。
			// closeSend 内部用 sync.Once 保证重复注销不会二次关闭。
			client.closeSend()

			// 如果房间变空，则从 Hub 中删除该房间记录
			if len(roomClients) == 0 {
				delete(h.rooms, roomID)
				logCtx.Info("Room empty, removed from Hub")
			}
		} else {
			logCtx.Warn("Client not found in room during unregister")
		}
	} else {
		logCtx.Warn("Room not found during client unregister")
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	if h.presenceRepo != nil {
		go func() {
			if err := h.presenceRepo.MarkOffline(context.Background(), roomID, userID); err != nil {
				logCtx.WithError(err).Warn("Failed to mark user offline")
			}
		}()
	}
}

// handleInbound 处理客户端发来的一帧聊天消息。
// 格式错误或业务拒绝只回错误帧给出错连接，不广播也不断开。
func (h *Hub) handleInbound(msg HubMessage) {
	ctx := context.Background()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   msg.RoomID,
		"user_id":   msg.UserID,
		"operation": "handleInbound",
	})

	var frame dto.InboundFrame
	if err := json.Unmarshal(msg.RawData, &frame); err != nil {
		logCtx.WithError(err).Warn("Inbound frame is not valid JSON")
		h.sendError(msg.Client, "malformed frame: invalid JSON")
		return
	}
	if frame.Content == "" && (frame.Attachment == nil || frame.Attachment.IsZero()) {
		logCtx.Warn("Inbound frame carries neither content nor attachment")
		h.sendError(msg.Client, "malformed frame: missing content")
		return
	}

	// 身份与时间戳由服务端填充；客户端声明的发送者字段从不被采信
	persisted, err := h.messageService.Post(ctx, msg.UserID, msg.RoomID, frame.Content, frame.Kind, frame.Attachment)
	if err != nil {
		logCtx.WithError(err).Warn("Inbound message rejected by service")
		h.sendError(msg.Client, err.Error())
		return
	}

	broadcastBytes, err := json.Marshal(persisted)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal persisted message for broadcast")
		return
	}

	// 广播给房间内全部连接，包含发送者本身：
	// 发送端与其它端都从这一次权威广播渲染，保证 id/createdAt 一致
	h.broadcast(msg.RoomID, broadcastBytes, nil)
}

// BroadcastPersisted 将一条已落库的消息广播给其所在房间的全部连接。
// 供 REST 发送路径调用，使 HTTP 发出的消息也能即时推给在线的 WebSocket 订阅者。
// 广播本身在 Hub 主循环内执行，与入站帧共用同一个单写者，
// 避免 HTTP 处理协程与主循环并发扇出导致订阅者观察到不同顺序。
func (h *Hub) BroadcastPersisted(msg *domain.Message) {
	if msg == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).WithField("message_id", msg.ID).Error("Hub: failed to marshal persisted message for broadcast")
		return
	}
	h.QueueMessage(HubMessage{
		Type:    "persisted",
		RoomID:  msg.RoomID,
		UserID:  msg.SenderID,
		RawData: payload,
	})
}

// sendError 向单个连接回送错误帧 (非阻塞)。
func (h *Hub) sendError(client *Client, message string) {
	if client == nil {
		return
	}
	payload, err := json.Marshal(dto.ErrorFrame{Error: message})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		logrus.WithField("user_id", client.UserID()).Warn("Client send channel full when sending error frame")
	}
}

// broadcast 将消息发送给指定房间的所有客户端。
// exclude 非 nil 时跳过该连接 (聊天广播不排除任何人，传 nil)。
func (h *Hub) broadcast(roomID uint, message []byte, exclude *Client) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	// 创建一个接收者列表的副本，避免长时间持有锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != exclude {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"message_size":    len(message),
		"recipient_count": len(clientsToSend),
	})
	logCtx.Debug("Broadcasting message to clients")

	for _, client := range clientsToSend {
		// 使用非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logCtx.WithField("receiver_user_id", client.UserID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 这是 Client 向 Hub 发送消息的安全方式。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub is shut down, dropping message")
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// closeAllClients 在关停时关闭所有仍在线的连接。
// 只由 Run 循环在收到 done 信号后调用。底层连接被关闭后，
// 各 ReadPump 随之退出，其注销请求被关停后的 QueueMessage 丢弃。
func (h *Hub) closeAllClients() {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for roomID, roomClients := range h.rooms {
		for client := range roomClients {
			client.closeSend()
			client.CloseConn()
		}
		delete(h.rooms, roomID)
	}
}

// Shutdown 通知 Run 循环退出并断开所有在线连接。可重复调用。
// messageChan 本身保持打开，滞留的生产者不会因为向已关闭通道发送而崩溃。
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.done)
	})
}
