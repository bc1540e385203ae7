package tasks

import (
	"encoding/json"
	"time"
)

// 定义任务类型常量
const (
	TypeRoomActivity  = "room:activity"  // 房间活跃度更新任务 (last_active / message_count)
	TypePresenceSweep = "presence:sweep" // 周期性清理无人房间的在线集合
)

// RoomActivityPayload 定义了房间活跃度更新任务的数据结构
type RoomActivityPayload struct {
	RoomID       uint      `json:"room_id"`
	At           time.Time `json:"at"`
	MessageDelta int64     `json:"message_delta"`
}

// NewRoomActivityTask 创建一个房间活跃度更新任务的 payload
func NewRoomActivityTask(roomID uint, at time.Time, messageDelta int64) ([]byte, error) {
	payload := RoomActivityPayload{
		RoomID:       roomID,
		At:           at,
		MessageDelta: messageDelta,
	}
	return json.Marshal(payload)
}

// NewPresenceSweepTask 创建周期清理任务的 payload (无参数)
func NewPresenceSweepTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
