package service_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/service"
)

func TestUploadService_Store_Success(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	svc, err := service.NewUploadService(dir, "/uploads", 1024)
	require.NoError(t, err)

	content := "hello attachment"

	// Act
	att, err := svc.Store("notes.txt", "text/plain", strings.NewReader(content), int64(len(content)))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, "notes.txt", att.Name, "元数据保留原始文件名")
	assert.Equal(t, int64(len(content)), att.SizeBytes)
	assert.True(t, strings.HasPrefix(att.URL, "/uploads/"), "URL 应带对外访问前缀")
	assert.True(t, strings.HasSuffix(att.URL, ".txt"), "存储对象保留原始扩展名")

	// 落盘内容完整
	stored, err := os.ReadFile(filepath.Join(dir, filepath.Base(att.URL)))
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))
}

func TestUploadService_Store_DeclaredSizeTooLarge(t *testing.T) {
	// Arrange: 申报大小超限时直接拒绝，不读取字节
	dir := t.TempDir()
	svc, err := service.NewUploadService(dir, "/uploads", 16)
	require.NoError(t, err)

	// Act
	att, err := svc.Store("big.bin", "application/octet-stream", strings.NewReader("x"), 1024)

	// Assert
	assert.ErrorIs(t, err, service.ErrAttachmentTooLarge)
	assert.Nil(t, att)
}

func TestUploadService_Store_ActualSizeTooLarge(t *testing.T) {
	// Arrange: 申报值造假，实际字节超限时同样拒绝且不留残文件
	dir := t.TempDir()
	svc, err := service.NewUploadService(dir, "/uploads", 8)
	require.NoError(t, err)

	// Act
	att, err := svc.Store("sneaky.bin", "application/octet-stream", strings.NewReader("way more than eight bytes"), 4)

	// Assert
	assert.ErrorIs(t, err, service.ErrAttachmentTooLarge)
	assert.Nil(t, att)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "被拒绝的上传不应留下残文件")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", service.FormatSize(512))
	assert.Equal(t, "1.0 KB", service.FormatSize(1024))
	assert.Equal(t, "1.5 MB", service.FormatSize(3*1024*1024/2))
}

func TestKindForMime(t *testing.T) {
	assert.Equal(t, domain.KindImage, service.KindForMime("image/png"))
	assert.Equal(t, domain.KindVideo, service.KindForMime("video/mp4"))
	assert.Equal(t, domain.KindFile, service.KindForMime("application/pdf"))
	assert.Equal(t, domain.KindFile, service.KindForMime(""))
}
