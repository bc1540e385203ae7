package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earnbuddy-chat/internal/domain"
)

func TestCursor_EncodeDecodeRoundTrip(t *testing.T) {
	// Arrange
	original := domain.Cursor{
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC),
		ID:        42,
	}

	// Act
	encoded := original.Encode()
	decoded, err := domain.DecodeCursor(encoded)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, original.ID, decoded.ID)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt), "纳秒精度的时间戳应完整往返")
}

func TestDecodeCursor_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"非 base64 字符", "not-a-cursor!!!"},
		{"缺少分隔符", "MTIzNDU2"},        // base64("123456")
		{"时间戳非数字", "YWJjfDEyMw"},     // base64("abc|123")
		{"ID 非数字", "MTIzNDU2fGFiYw"}, // base64("123456|abc")
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.DecodeCursor(tc.input)
			assert.Error(t, err, "非法游标应返回错误")
		})
	}
}

func TestCursor_Before(t *testing.T) {
	base := time.Now()
	earlier := domain.Cursor{CreatedAt: base.Add(-time.Second), ID: 10}
	later := domain.Cursor{CreatedAt: base, ID: 5}

	assert.True(t, earlier.Before(later), "时间更早的游标应排在前面")
	assert.False(t, later.Before(earlier))

	// 同一时间戳用 ID 破除并列
	tieA := domain.Cursor{CreatedAt: base, ID: 3}
	tieB := domain.Cursor{CreatedAt: base, ID: 4}
	assert.True(t, tieA.Before(tieB), "同时间戳按 ID 升序")
	assert.False(t, tieB.Before(tieA))
}
