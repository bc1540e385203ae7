package repository

import (
	"context"

	"earnbuddy-chat/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户。不存在时返回 ErrUserNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByUsername 根据用户名查找用户。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// Save 保存用户。用户名或邮箱冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, user *domain.User) error
}
