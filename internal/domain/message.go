package domain

import "time"

// 消息类型常量，决定 Attachment 字段如何被解释。
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
	KindFile  = "file"
)

// ValidKind 检查消息类型是否合法。
func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindVideo, KindFile:
		return true
	}
	return false
}

// Attachment 表示消息附带的文件元数据。
// 附件的字节内容由 Upload 服务单独上传，这里只保存其引用。
type Attachment struct {
	URL         string `gorm:"size:512" json:"url"`
	Name        string `gorm:"size:255" json:"name"`
	MimeType    string `gorm:"size:100" json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`        // 申报的字节大小，用于服务端上限校验
	SizeDisplay string `gorm:"size:32" json:"sizeDisplay"` // 例如 "1.2 MB"，仅用于展示
}

// IsZero 判断附件是否为空。
func (a Attachment) IsZero() bool {
	return a.URL == "" && a.Name == ""
}

// Message 表示房间内一条不可变的聊天消息。
// 创建后不提供任何更新/删除操作；展示顺序按 created_at 升序，
// 相同时间戳按插入分配的 ID 升序。
type Message struct {
	ID           uint       `gorm:"primaryKey" json:"id"`                                              // 消息唯一标识符 (主键，同时承载同时间戳的插入顺序)
	RoomID       uint       `gorm:"index:idx_room_created,priority:1;not null" json:"roomId"`          // 所属房间 ID
	SenderID     uint       `gorm:"index;not null" json:"senderId"`                                    // 发送者用户 ID，由服务端从认证身份写入
	SenderName   string     `gorm:"size:100;not null" json:"senderName"`                               // 发送时的昵称快照 (不随用户资料变化回溯更新)
	SenderAvatar string     `gorm:"size:512" json:"senderAvatar"`                                      // 发送时的头像快照
	Kind         string     `gorm:"size:10;not null;default:text" json:"kind"`                         // text / image / video / file
	Content      string     `gorm:"type:text" json:"content"`                                          // 消息正文；有附件时允许为空
	Attachment   Attachment `gorm:"embedded;embeddedPrefix:attachment_" json:"attachment"`             // 附件元数据 (kind != text 时存在)
	CreatedAt    time.Time  `gorm:"index:idx_room_created,priority:2;autoCreateTime" json:"createdAt"` // 服务端分配的时间戳，排序依据
}

// HasAttachment 判断消息是否携带附件。
func (m *Message) HasAttachment() bool {
	return !m.Attachment.IsZero()
}
