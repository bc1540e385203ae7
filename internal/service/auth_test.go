package service_test // 测试包

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/repository"
	"earnbuddy-chat/internal/repository/mocks"
	"earnbuddy-chat/internal/service"
)

// --- 测试 Register 方法 ---

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange: 准备 Mock 对象, Service 实例, 和测试数据
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err, "创建 AuthService 不应失败")

	ctx := context.Background()
	username := "alice"
	password := "StrongPass123"
	email := "alice@example.com"
	displayName := "Alice"

	// 设置 Mock 预期: Save 被调用时模拟数据库填充 ID 和时间戳。
	// 哈希在 Run 回调里按值捕获：Register 返回前会清空 user.Password，
	// 断言不能依赖调用后还活着的指针内容。
	var savedHash string
	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) {
			userArg := args.Get(1).(*domain.User)
			assert.Equal(t, username, userArg.Username)
			assert.Equal(t, email, userArg.Email)
			assert.Equal(t, displayName, userArg.DisplayName)
			savedHash = userArg.Password
			userArg.ID = 5
			userArg.CreatedAt = time.Now().Add(-time.Second)
			userArg.UpdatedAt = time.Now().Add(-time.Second)
		}).
		Return(nil).
		Once()

	// Act: 执行被测试的 Register 方法
	registeredUser, err := authService.Register(ctx, username, password, email, displayName)

	// Assert: 验证 Register 的结果
	assert.NoError(t, err, "成功注册时不应有错误")
	require.NotNil(t, registeredUser, "成功注册时应返回用户对象")
	assert.Equal(t, uint(5), registeredUser.ID, "返回的用户 ID 应为 5")
	assert.Equal(t, username, registeredUser.Username)
	assert.Empty(t, registeredUser.Password, "返回的用户密码应为空")
	// 落库的密码应是原始密码的 bcrypt 哈希
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(savedHash), []byte(password)), "密码应被正确哈希")

	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()

	// 模拟数据库唯一约束冲突
	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).
		Return(repository.ErrDuplicateEntry).
		Once()

	// Act
	registeredUser, err := authService.Register(ctx, "alice", "StrongPass123", "alice@example.com", "")

	// Assert
	assert.ErrorIs(t, err, service.ErrRegistrationFailed, "重复注册应返回 ErrRegistrationFailed")
	assert.Nil(t, registeredUser)

	mockUserRepo.AssertExpectations(t)
}

// --- 测试 Login 方法 ---

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	password := "StrongPass123"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	storedUser := &domain.User{ID: 7, Username: "alice", Password: string(hashed)}
	mockUserRepo.On("FindByUsername", ctx, "alice").Return(storedUser, nil).Once()

	// Act
	token, err := authService.Login(ctx, "alice", password)

	// Assert
	assert.NoError(t, err, "正确的用户名密码应登录成功")
	assert.NotEmpty(t, token, "登录成功应返回 JWT")

	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	hashed, err := bcrypt.GenerateFromPassword([]byte("RealPassword"), bcrypt.DefaultCost)
	require.NoError(t, err)

	storedUser := &domain.User{ID: 7, Username: "alice", Password: string(hashed)}
	mockUserRepo.On("FindByUsername", ctx, "alice").Return(storedUser, nil).Once()

	// Act
	token, err := authService.Login(ctx, "alice", "WrongPassword")

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed, "错误密码应返回统一的认证失败错误")
	assert.Empty(t, token)

	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	mockUserRepo.On("FindByUsername", ctx, "ghost").
		Return(nil, repository.ErrUserNotFound).
		Once()

	// Act
	token, err := authService.Login(ctx, "ghost", "whatever")

	// Assert: 不泄露用户是否存在，统一返回认证失败
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Empty(t, token)

	mockUserRepo.AssertExpectations(t)
}
