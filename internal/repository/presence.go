package repository

import (
	"context"
	"time"
)

// PresenceRepository 维护每个房间当前在线成员的易失状态。
// 该状态由 Hub 在连接注册/注销时写入，不落数据库。
type PresenceRepository interface {
	// MarkOnline 将用户标记为在某房间在线，并刷新房间集合的过期时间。
	MarkOnline(ctx context.Context, roomID, userID uint, ttl time.Duration) error

	// MarkOffline 将用户从房间的在线集合中移除。
	MarkOffline(ctx context.Context, roomID, userID uint) error

	// OnlineMembers 返回房间当前在线的用户 ID 列表。
	OnlineMembers(ctx context.Context, roomID uint) ([]uint, error)

	// SweepEmpty 清理没有任何在线成员的房间集合，返回清理数量。
	// 由周期任务调用，防止异常断开残留的 key 堆积。
	SweepEmpty(ctx context.Context) (int, error)
}
