package domain

import "time"

// Room 表示一个带有显式成员列表的聊天房间。
type Room struct {
	ID           uint      `gorm:"primaryKey" json:"id"`                            // 房间唯一标识符 (主键)
	Name         string    `gorm:"size:100;not null" json:"name"`                   // 房间名称
	Description  string    `gorm:"size:500" json:"description"`                     // 房间描述
	CreatorID    uint      `gorm:"index;not null" json:"creatorId"`                 // 创建该房间的用户 ID
	InviteCode   string    `gorm:"uniqueIndex;size:191;not null" json:"inviteCode"` // 用于加入房间的邀请码，必须唯一
	IsPrivate    bool      `gorm:"not null;default:false" json:"isPrivate"`         // 私有房间只能通过邀请码加入
	MessageCount int64     `gorm:"not null;default:0" json:"messageCount"`          // 房间累计消息数 (由后台任务维护)
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	LastActive   time.Time `gorm:"index" json:"lastActive"` // 房间最后活跃时间，随消息写入异步更新
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`
}

// RoomMember 表示一条房间成员关系。
// 不变式：用户当且仅当存在对应的成员记录时才能读写该房间的消息。
type RoomMember struct {
	ID       uint      `gorm:"primaryKey"`
	RoomID   uint      `gorm:"uniqueIndex:idx_room_user,priority:1;not null"`
	UserID   uint      `gorm:"uniqueIndex:idx_room_user,priority:2;index;not null"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}
