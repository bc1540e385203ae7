package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earnbuddy-chat/client"
	"earnbuddy-chat/internal/domain"
)

// fakeTransport 是 MessageAPI 的测试替身，可统计并发请求数并控制阻塞。
type fakeTransport struct {
	mu           sync.Mutex
	pages        [][]domain.Message // 每次 History 依次返回的页；用尽后重复最后一页
	historyCalls int
	inFlight     int
	maxInFlight  int
	blockHistory chan struct{} // 非 nil 时，初始加载之后的 History 阻塞至通道关闭
	postErr      error
	postCalls    int
}

func (f *fakeTransport) History(ctx context.Context, roomID uint, limit int, before string) ([]domain.Message, string, error) {
	f.mu.Lock()
	f.historyCalls++
	call := f.historyCalls
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	block := f.blockHistory
	f.mu.Unlock()

	// 初始加载 (第一次调用) 不阻塞，后台轮询按配置阻塞
	if block != nil && call > 1 {
		<-block
	}

	f.mu.Lock()
	f.inFlight--
	var page []domain.Message
	if len(f.pages) > 0 {
		idx := call - 1
		if idx >= len(f.pages) {
			idx = len(f.pages) - 1
		}
		page = f.pages[idx]
	}
	f.mu.Unlock()
	return page, "", nil
}

func (f *fakeTransport) Post(ctx context.Context, roomID uint, content, kind string, attachment *domain.Attachment) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &domain.Message{ID: uint(100 + f.postCalls), RoomID: roomID, Content: content, CreatedAt: time.Now()}, nil
}

func (f *fakeTransport) snapshot() (historyCalls, maxInFlight, postCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls, f.maxInFlight, f.postCalls
}

func TestPoller_InitialLoadThenSnapshotReplace(t *testing.T) {
	// Arrange: 初始页一条消息，轮询页换成两条
	firstPage := []domain.Message{{ID: 1, Content: "hello"}}
	secondPage := []domain.Message{{ID: 1, Content: "hello"}, {ID: 2, Content: "world"}}
	transport := &fakeTransport{pages: [][]domain.Message{firstPage, secondPage}}

	p := client.NewPoller(transport, 1,
		client.WithInitialDelay(5*time.Millisecond),
		client.WithInterval(10*time.Millisecond),
	)
	defer p.Stop()

	// Act
	require.NoError(t, p.Start(context.Background()))

	// Assert: 初始快照
	assert.Equal(t, client.StateReady, p.State())
	assert.Len(t, p.Messages(), 1)

	// 等待至少一次后台轮询后，快照应被服务端整页替换
	assert.Eventually(t, func() bool {
		return len(p.Messages()) == 2
	}, time.Second, 5*time.Millisecond, "后台轮询应替换整个快照")
}

func TestPoller_AtMostOneInFlight(t *testing.T) {
	// Arrange: 后台 History 一直阻塞，轮询周期远小于阻塞时长
	block := make(chan struct{})
	transport := &fakeTransport{blockHistory: block}

	p := client.NewPoller(transport, 1,
		client.WithInitialDelay(time.Millisecond),
		client.WithInterval(5*time.Millisecond),
	)
	defer p.Stop()

	require.NoError(t, p.Start(context.Background()))

	// Act: 留出足够多的 tick 间隔，若无保护将产生并发请求
	time.Sleep(100 * time.Millisecond)
	close(block)

	// Assert: 同一时刻至多一个未完成的拉取
	_, maxInFlight, _ := transport.snapshot()
	assert.LessOrEqual(t, maxInFlight, 1, "阻塞期间的 tick 应被丢弃而不是排队")
}

func TestPoller_SendFailurePreservesDraft(t *testing.T) {
	// Arrange
	transport := &fakeTransport{postErr: errors.New("network down")}
	p := client.NewPoller(transport, 1,
		client.WithInitialDelay(time.Hour), // 本测试不关心轮询
		client.WithInterval(time.Hour),
	)
	defer p.Stop()
	require.NoError(t, p.Start(context.Background()))

	draft := client.Draft{Content: "do not lose me"}
	p.SetDraft(draft)

	// Act: 发送失败
	msg, err := p.Send(context.Background())

	// Assert: 错误上浮且草稿原样保留
	assert.Error(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, draft, p.Draft(), "发送失败绝不清空草稿")

	// Act: 网络恢复后用同一份草稿重试
	transport.mu.Lock()
	transport.postErr = nil
	transport.mu.Unlock()
	msg, err = p.Send(context.Background())

	// Assert: 成功后草稿被清空，且总共只产生两次 POST (无静默重复提交)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, p.Draft().IsEmpty(), "发送成功应清空草稿")
	_, _, postCalls := transport.snapshot()
	assert.Equal(t, 2, postCalls)
}

func TestPoller_SendEmptyDraft(t *testing.T) {
	transport := &fakeTransport{}
	p := client.NewPoller(transport, 1, client.WithInitialDelay(time.Hour), client.WithInterval(time.Hour))
	defer p.Stop()
	require.NoError(t, p.Start(context.Background()))

	msg, err := p.Send(context.Background())
	assert.ErrorIs(t, err, client.ErrValidation, "空草稿不可发送")
	assert.Nil(t, msg)
}

func TestPoller_StopDiscardsInFlightResult(t *testing.T) {
	// Arrange: 第二页与第一页不同，且后台拉取阻塞直到 Stop 之后
	block := make(chan struct{})
	transport := &fakeTransport{
		pages:        [][]domain.Message{{{ID: 1}}, {{ID: 1}, {ID: 2}}},
		blockHistory: block,
	}
	p := client.NewPoller(transport, 1,
		client.WithInitialDelay(time.Millisecond),
		client.WithInterval(5*time.Millisecond),
	)
	require.NoError(t, p.Start(context.Background()))

	// 等待后台拉取进入阻塞
	require.Eventually(t, func() bool {
		calls, _, _ := transport.snapshot()
		return calls >= 2
	}, time.Second, time.Millisecond)

	// Act: 先停止，再放行迟到的拉取结果
	p.Stop()
	close(block)
	time.Sleep(20 * time.Millisecond)

	// Assert: 迟到的结果被丢弃，快照仍是停止前的内容
	assert.Equal(t, client.StateStopped, p.State())
	assert.Len(t, p.Messages(), 1, "Stop 之后完成的拉取不应更新快照")
}
