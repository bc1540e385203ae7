// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// User 表示应用程序中的用户。
type User struct {
	ID          uint      `gorm:"primaryKey"` // 用户唯一标识符 (主键)
	Username    string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null"`
	Password    string    `gorm:"type:text;not null"` // 存储的是哈希后的密码，不能为空
	Email       string    `gorm:"type:varchar(191);uniqueIndex:idx_email"`
	DisplayName string    `gorm:"size:100"` // 对外展示的昵称，消息发送时作为快照写入
	AvatarURL   string    `gorm:"size:512"` // 头像地址，同样以快照形式进入消息
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// SenderName 返回消息快照使用的展示名，昵称为空时退回用户名。
func (u *User) SenderName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
