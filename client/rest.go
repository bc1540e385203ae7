package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"earnbuddy-chat/internal/domain"
	"earnbuddy-chat/internal/dto"
)

// MessageAPI 是轮询控制器和流式控制器共用的 REST 消息接口。
type MessageAPI interface {
	// History 拉取一页历史消息，返回升序消息列表和下一页游标。
	History(ctx context.Context, roomID uint, limit int, before string) ([]domain.Message, string, error)
	// Post 通过 REST 发送一条消息，返回服务端填充后的完整消息。
	Post(ctx context.Context, roomID uint, content, kind string, attachment *domain.Attachment) (*domain.Message, error)
}

// Uploader 上传附件字节，换取可嵌入消息的附件元数据。
type Uploader interface {
	Upload(ctx context.Context, filename, mimeType string, r io.Reader) (*domain.Attachment, error)
}

// Rest 是 MessageAPI 和 Uploader 的 HTTP 实现。
type Rest struct {
	baseURL    string // 例如 http://localhost:8080
	token      string // Bearer token
	httpClient *http.Client
}

// NewRest 创建 Rest 客户端。httpClient 为 nil 时使用 10 秒超时的默认客户端。
func NewRest(baseURL, token string, httpClient *http.Client) *Rest {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Rest{baseURL: baseURL, token: token, httpClient: httpClient}
}

// History 实现 MessageAPI。
func (r *Rest) History(ctx context.Context, roomID uint, limit int, before string) ([]domain.Message, string, error) {
	endpoint := fmt.Sprintf("%s/api/rooms/%d/messages", r.baseURL, roomID)
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before != "" {
		query.Set("before", before)
	}
	if encoded := query.Encode(); encoded != "" {
		endpoint = endpoint + "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("client: build history request: %w", err)
	}
	r.setAuth(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("client: history request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, "", err
	}

	var payload dto.MessageListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("client: decode history response: %w", err)
	}
	return payload.Messages, payload.NextBefore, nil
}

// Post 实现 MessageAPI。
func (r *Rest) Post(ctx context.Context, roomID uint, content, kind string, attachment *domain.Attachment) (*domain.Message, error) {
	body, err := json.Marshal(dto.PostMessageRequest{
		Content:    content,
		Kind:       kind,
		Attachment: attachment,
	})
	if err != nil {
		return nil, fmt.Errorf("client: marshal post body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/rooms/%d/messages", r.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	r.setAuth(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: post request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var payload dto.MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("client: decode post response: %w", err)
	}
	return &payload.Message, nil
}

// Upload 实现 Uploader，以 multipart 表单上传附件字节。
func (r *Rest) Upload(ctx context.Context, filename, mimeType string, src io.Reader) (*domain.Attachment, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("client: create multipart part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, fmt.Errorf("client: buffer upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("client: finalize multipart body: %w", err)
	}

	endpoint := r.baseURL + "/api/uploads"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("client: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	r.setAuth(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var payload struct {
		Attachment *domain.Attachment `json:"attachment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("client: decode upload response: %w", err)
	}
	if payload.Attachment == nil {
		return nil, fmt.Errorf("client: upload response missing attachment")
	}
	return payload.Attachment, nil
}

func (r *Rest) setAuth(req *http.Request) {
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
}

// statusError 将非 2xx 响应映射为客户端侧的错误分级。
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, body.Error)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, body.Error)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrValidation, body.Error)
	default:
		return fmt.Errorf("client: unexpected status %d: %s", resp.StatusCode, body.Error)
	}
}
