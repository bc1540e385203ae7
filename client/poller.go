package client

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
)

// PollerState 表示轮询控制器的生命周期状态。
type PollerState int

const (
	StateIdle    PollerState = iota // 尚未启动
	StateLoading                    // 首次加载中 (区别于后台轮询，供 UI 只显示一次加载态)
	StateReady                      // 已有快照，等待下一次轮询
	StatePolling                    // 后台轮询请求进行中
	StateStopped                    // 已停止，不再发起请求
)

func (s PollerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Draft 是待发送的输入框内容。
// 发送失败时 Draft 保持原样，调用方可以直接重试，绝不静默丢弃。
type Draft struct {
	Content        string
	AttachmentName string
	AttachmentMime string
	AttachmentSrc  io.Reader // 非 nil 时发送前先经 Uploader 上传
}

// IsEmpty 判断草稿是否没有可发送的内容。
func (d Draft) IsEmpty() bool {
	return d.Content == "" && d.AttachmentSrc == nil
}

// Poller 通过周期性 REST 拉取保持一个房间的消息列表近似新鲜。
// 每次拉取用服务端返回的整页替换本地快照，不做客户端合并。
type Poller struct {
	api      MessageAPI
	uploader Uploader // 可为 nil，此时带附件的草稿发送会失败
	roomID   uint

	interval     time.Duration // 轮询周期
	initialDelay time.Duration // 首次轮询前的延迟，避免紧跟初始加载重复拉取
	pageLimit    int

	mu       sync.Mutex
	state    PollerState
	messages []domain.Message
	draft    Draft
	inFlight bool // 同一房间同一时刻至多一个未完成的拉取
	stopped  chan struct{}
	stopOnce sync.Once

	log *logrus.Entry
}

// PollerOption 调整 Poller 的默认行为。
type PollerOption func(*Poller)

// WithInterval 覆盖默认的 5 秒轮询周期。
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithInitialDelay 覆盖首次轮询前的默认 5 秒延迟。
func WithInitialDelay(d time.Duration) PollerOption {
	return func(p *Poller) { p.initialDelay = d }
}

// WithPageLimit 覆盖每次拉取的页大小。
func WithPageLimit(n int) PollerOption {
	return func(p *Poller) { p.pageLimit = n }
}

// WithUploader 配置附件上传依赖。
func WithUploader(u Uploader) PollerOption {
	return func(p *Poller) { p.uploader = u }
}

// NewPoller 创建一个房间视图的轮询控制器。
func NewPoller(api MessageAPI, roomID uint, opts ...PollerOption) *Poller {
	if api == nil {
		panic("MessageAPI cannot be nil for Poller")
	}
	p := &Poller{
		api:          api,
		roomID:       roomID,
		interval:     5 * time.Second,
		initialDelay: 5 * time.Second,
		pageLimit:    50,
		state:        StateIdle,
		stopped:      make(chan struct{}),
		log:          logrus.WithFields(logrus.Fields{"component": "poller", "room_id": roomID}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start 执行首次加载并启动后台轮询循环。
// 首次加载失败时返回错误且不启动轮询；调用方可重新 Start。
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil // 已经启动
	}
	p.state = StateLoading
	p.mu.Unlock()

	messages, _, err := p.api.History(ctx, p.roomID, p.pageLimit, "")
	if err != nil {
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		p.log.WithError(err).Warn("Initial history load failed")
		return err
	}

	p.mu.Lock()
	if p.state == StateStopped {
		// Start 期间被 Stop，丢弃结果
		p.mu.Unlock()
		return ErrStopped
	}
	p.messages = messages
	p.state = StateReady
	p.mu.Unlock()
	p.log.WithField("count", len(messages)).Info("Initial history loaded")

	go p.loop(ctx)
	return nil
}

// loop 是后台轮询循环，首次轮询前先等待 initialDelay。
func (p *Poller) loop(ctx context.Context) {
	select {
	case <-time.After(p.initialDelay):
	case <-p.stopped:
		return
	case <-ctx.Done():
		p.Stop()
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.stopped:
			return
		case <-ctx.Done():
			p.Stop()
			return
		}
	}
}

// pollOnce 执行一次后台拉取。
// 若上一次拉取仍未完成，本次 tick 直接丢弃而不是排队。
func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	if p.state == StateStopped || p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.state = StatePolling
	p.mu.Unlock()

	messages, _, err := p.api.History(ctx, p.roomID, p.pageLimit, "")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if p.state == StateStopped {
		// 视图已销毁，丢弃迟到的结果
		return
	}
	p.state = StateReady
	if err != nil {
		// 瞬时失败按 tick 吞掉：UI 继续显示上一份快照
		p.log.WithError(err).Warn("Background poll failed, keeping last snapshot")
		return
	}
	p.messages = messages
}

// Messages 返回当前快照的副本。
func (p *Poller) Messages() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make([]domain.Message, len(p.messages))
	copy(snapshot, p.messages)
	return snapshot
}

// State 返回当前状态。
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetDraft 更新输入框草稿。
func (p *Poller) SetDraft(d Draft) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = d
}

// Draft 返回当前草稿。
func (p *Poller) Draft() Draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft
}

// Send 发送当前草稿。
// 带附件的草稿先上传附件换取元数据，再 POST 消息。
// 任一步失败都返回错误并保留草稿；成功后清空草稿并在短延迟后触发一次额外拉取。
func (p *Poller) Send(ctx context.Context) (*domain.Message, error) {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil, ErrStopped
	}
	draft := p.draft
	p.mu.Unlock()

	if draft.IsEmpty() {
		return nil, ErrValidation
	}

	var attachment *domain.Attachment
	kind := domain.KindText
	if draft.AttachmentSrc != nil {
		if p.uploader == nil {
			return nil, ErrValidation
		}
		uploaded, err := p.uploader.Upload(ctx, draft.AttachmentName, draft.AttachmentMime, draft.AttachmentSrc)
		if err != nil {
			p.log.WithError(err).Warn("Attachment upload failed, draft preserved")
			return nil, err
		}
		attachment = uploaded
		kind = kindForMime(draft.AttachmentMime)
	}

	msg, err := p.api.Post(ctx, p.roomID, draft.Content, kind, attachment)
	if err != nil {
		// 发送失败绝不清空草稿
		p.log.WithError(err).Warn("Send failed, draft preserved")
		return nil, err
	}

	p.mu.Lock()
	p.draft = Draft{}
	p.mu.Unlock()
	p.log.WithField("message_id", msg.ID).Info("Message sent")

	// 发送成功后 1 秒触发一次额外拉取，降低感知延迟
	go func() {
		select {
		case <-time.After(1 * time.Second):
			p.pollOnce(ctx)
		case <-p.stopped:
		}
	}()

	return msg, nil
}

// Stop 停止轮询。进行中的拉取允许完成，其结果会被丢弃。
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		close(p.stopped)
		p.log.Info("Poller stopped")
	})
}

// kindForMime 根据 MIME 前缀推断消息类型。
func kindForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return domain.KindVideo
	default:
		return domain.KindFile
	}
}
