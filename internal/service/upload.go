package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
)

// UploadService 负责聊天附件的落盘存储。
// 附件字节通过它单独上传，消息体里只保存返回的元数据引用。
type UploadService struct {
	dir      string // 本地存储目录
	baseURL  string // 对外可访问前缀，例如 "/uploads"
	maxBytes int64  // 单个附件大小上限
}

// NewUploadService 创建 UploadService 实例并确保存储目录存在。
func NewUploadService(dir, baseURL string, maxBytes int64) (*UploadService, error) {
	if dir == "" {
		dir = "./uploads"
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &UploadService{dir: dir, baseURL: baseURL, maxBytes: maxBytes}, nil
}

// MaxBytes 返回配置的附件大小上限。
func (s *UploadService) MaxBytes() int64 { return s.maxBytes }

// Store 保存一个附件，返回可写入消息的元数据。
// declaredSize 是客户端申报的大小，先于读取字节做检查；
// 实际写入也经过 LimitReader 兜底，防止申报值造假。
func (s *UploadService) Store(filename, mimeType string, r io.Reader, declaredSize int64) (*domain.Attachment, error) {
	logCtx := logrus.WithFields(logrus.Fields{"filename": filename, "declared_size": declaredSize})

	if s.maxBytes > 0 && declaredSize > s.maxBytes {
		logCtx.Warn("Upload rejected: declared size exceeds limit")
		return nil, ErrAttachmentTooLarge
	}

	// 用 uuid 命名存储对象，保留原始扩展名
	ext := filepath.Ext(filename)
	objectName := uuid.NewString() + ext
	path := filepath.Join(s.dir, objectName)

	f, err := os.Create(path)
	if err != nil {
		logCtx.WithError(err).Error("Failed to create upload file")
		return nil, ErrInternalServer
	}
	defer f.Close()

	// 多读一个字节以检测超限
	limit := int64(1<<62 - 1)
	if s.maxBytes > 0 {
		limit = s.maxBytes + 1
	}
	written, err := io.Copy(f, io.LimitReader(r, limit))
	if err != nil {
		os.Remove(path)
		logCtx.WithError(err).Error("Failed to write upload file")
		return nil, ErrInternalServer
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		os.Remove(path)
		logCtx.WithField("written", written).Warn("Upload rejected: actual size exceeds limit")
		return nil, ErrAttachmentTooLarge
	}

	att := &domain.Attachment{
		URL:         strings.TrimRight(s.baseURL, "/") + "/" + objectName,
		Name:        filename,
		MimeType:    mimeType,
		SizeBytes:   written,
		SizeDisplay: FormatSize(written),
	}
	logCtx.WithField("url", att.URL).Info("Attachment stored")
	return att, nil
}

// FormatSize 将字节数格式化为展示用的字符串。
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// KindForMime 根据 MIME 类型推断消息类型。
func KindForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return domain.KindVideo
	default:
		return domain.KindFile
	}
}
