package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/service"
)

// UploadHandler 封装了附件上传的 HTTP 处理逻辑
type UploadHandler struct {
	uploadService *service.UploadService // 依赖 UploadService
}

// NewUploadHandler 创建 UploadHandler 实例
func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// UploadResponse 定义上传成功的响应结构体。
// 返回的附件元数据可直接嵌入后续的发消息请求。
type UploadResponse struct {
	Message    string             `json:"message"`
	Kind       string             `json:"kind"`
	Attachment *domain.Attachment `json:"attachment"`
}

// Upload 处理附件上传请求 (POST /api/uploads, multipart 表单字段 "file")
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Upload: User ID not available, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		logCtx.WithError(err).Warn("Handler.Upload: Missing or invalid multipart file field")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: multipart field 'file' is required"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		logCtx.WithError(err).Error("Handler.Upload: Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer src.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	attachment, err := h.uploadService.Store(fileHeader.Filename, mimeType, src, fileHeader.Size)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.Upload: Failed to store uploaded file")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithFields(logrus.Fields{
		"file_name": attachment.Name,
		"file_size": attachment.SizeBytes,
	}).Info("Handler.Upload: File uploaded successfully")
	c.JSON(http.StatusCreated, UploadResponse{
		Message:    "File uploaded successfully",
		Kind:       service.KindForMime(mimeType),
		Attachment: attachment,
	})
}
