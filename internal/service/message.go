package service

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/repository"
	"earnbuddy-chat/internal/tasks"
)

// 历史分页的默认与上限页大小。
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// MessageService 承载消息核心的业务规则：校验、身份盖章、追加与分页查询。
// REST 与 WebSocket 两条传输路径共用这一个实现。
type MessageService struct {
	messageRepo   repository.MessageRepository
	userRepo      repository.UserRepository
	membership    *MembershipService
	asynqClient   *asynq.Client // 可为 nil (测试环境)，活跃度更新降级为跳过
	maxAttachment int64         // 附件申报大小上限，0 表示不限制
}

// NewMessageService 创建 MessageService 实例。
func NewMessageService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	membership *MembershipService,
	asynqClient *asynq.Client,
	maxAttachmentBytes int64,
) *MessageService {
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for MessageService")
	}
	if userRepo == nil {
		panic("UserRepository cannot be nil for MessageService")
	}
	if membership == nil {
		panic("MembershipService cannot be nil for MessageService")
	}
	return &MessageService{
		messageRepo:   messageRepo,
		userRepo:      userRepo,
		membership:    membership,
		asynqClient:   asynqClient,
		maxAttachment: maxAttachmentBytes,
	}
}

// Post 校验并持久化一条新消息。
// senderID 一律来自已认证身份；content/kind/attachment 来自客户端输入。
// 返回的消息已带有服务端分配的 ID 与 CreatedAt。
func (s *MessageService) Post(ctx context.Context, senderID, roomID uint, content, kind string, attachment *domain.Attachment) (*domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": senderID, "room_id": roomID})

	// 1. 成员资格检查 (写权限)
	if err := s.membership.Authorize(ctx, senderID, roomID, ActionWrite); err != nil {
		return nil, err
	}

	// 2. 输入校验
	if kind == "" {
		kind = domain.KindText
	}
	if !domain.ValidKind(kind) {
		logCtx.WithField("kind", kind).Warn("Post: unknown message kind")
		return nil, ErrInvalidMessage
	}
	hasAttachment := attachment != nil && !attachment.IsZero()
	if content == "" && !hasAttachment {
		// 正文与附件不能同时为空
		return nil, ErrInvalidMessage
	}
	if kind != domain.KindText && !hasAttachment {
		logCtx.WithField("kind", kind).Warn("Post: non-text kind without attachment")
		return nil, ErrInvalidMessage
	}
	if hasAttachment && s.maxAttachment > 0 && attachment.SizeBytes > s.maxAttachment {
		logCtx.WithField("size_bytes", attachment.SizeBytes).Warn("Post: attachment exceeds size limit")
		return nil, ErrAttachmentTooLarge
	}

	// 3. 发送者资料快照 (发送后不随资料变化回溯更新)
	sender, err := s.userRepo.FindByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Post: authenticated sender no longer exists")
			return nil, ErrAuthenticationFailed
		}
		logCtx.WithError(err).Error("Post: repository error loading sender")
		return nil, ErrInternalServer
	}

	msg := &domain.Message{
		RoomID:       roomID,
		SenderID:     senderID,
		SenderName:   sender.SenderName(),
		SenderAvatar: sender.AvatarURL,
		Kind:         kind,
		Content:      content,
	}
	if hasAttachment {
		msg.Attachment = *attachment
	}

	// 4. 落库，ID 与 CreatedAt 由存储层分配
	if err := s.messageRepo.Append(ctx, msg); err != nil {
		logCtx.WithError(err).Error("Post: failed to append message")
		return nil, ErrInternalServer
	}

	// 5. 房间活跃度更新走后台任务，失败不影响消息本身
	s.enqueueActivityBump(msg)

	logCtx.WithField("message_id", msg.ID).Info("Message persisted")
	return msg, nil
}

// History 返回房间内 before 游标之前 (含) 的最近一页消息，升序排列。
// 第二个返回值是翻看更早消息时应传入的下一页游标，没有更多数据时为空串。
func (s *MessageService) History(ctx context.Context, userID, roomID uint, limit int, before string) ([]domain.Message, string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	// 1. 成员资格检查 (读权限)
	if err := s.membership.Authorize(ctx, userID, roomID, ActionRead); err != nil {
		return nil, "", err
	}

	// 2. 规范化分页参数
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	var cursor *domain.Cursor
	if before != "" {
		c, err := domain.DecodeCursor(before)
		if err != nil {
			logCtx.WithError(err).Warn("History: malformed cursor")
			return nil, "", ErrInvalidCursor
		}
		cursor = &c
	}

	// 3. 查询
	messages, err := s.messageRepo.ListByRoom(ctx, roomID, limit, cursor)
	if err != nil {
		logCtx.WithError(err).Error("History: failed to list messages")
		return nil, "", ErrInternalServer
	}

	// 4. 构造下一页游标：指向本页最早消息之前的位置。
	// 游标谓词是包含语义 (id <=)，因此用 ID-1 排除边界消息本身。
	nextBefore := ""
	if len(messages) == limit && messages[0].ID > 0 {
		next := domain.Cursor{CreatedAt: messages[0].CreatedAt, ID: messages[0].ID - 1}
		nextBefore = next.Encode()
	}
	return messages, nextBefore, nil
}

// enqueueActivityBump 将房间活跃度更新投递到后台队列。
func (s *MessageService) enqueueActivityBump(msg *domain.Message) {
	if s.asynqClient == nil {
		return
	}
	payload, err := tasks.NewRoomActivityTask(msg.RoomID, msg.CreatedAt, 1)
	if err != nil {
		logrus.WithError(err).Error("Failed to build room activity task payload")
		return
	}
	task := asynq.NewTask(tasks.TypeRoomActivity, payload)
	if _, err := s.asynqClient.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(3)); err != nil {
		logrus.WithError(err).WithField("room_id", msg.RoomID).Warn("Failed to enqueue room activity task")
	}
}
