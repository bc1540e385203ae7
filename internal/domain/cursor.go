package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor 是消息分页使用的不透明游标，由 (createdAt, id) 组成。
// 采用 keyset 而非 offset，保证并发插入时翻页结果仍然正确。
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// Encode 将游标序列化为 URL 安全的不透明字符串。
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d|%d", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor 解析客户端回传的游标字符串。
// 格式非法时返回错误，调用方应映射为 400。
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("cursor: invalid encoding: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return c, fmt.Errorf("cursor: malformed payload")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return c, fmt.Errorf("cursor: invalid timestamp: %w", err)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return c, fmt.Errorf("cursor: invalid id: %w", err)
	}
	c.CreatedAt = time.Unix(0, nanos)
	c.ID = uint(id)
	return c, nil
}

// CursorOf 从一条消息构造指向它的游标。
func CursorOf(m Message) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Before 判断游标 c 指向的位置是否严格早于 other。
func (c Cursor) Before(other Cursor) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID < other.ID
	}
	return c.CreatedAt.Before(other.CreatedAt)
}
