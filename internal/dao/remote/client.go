// Package remote 远端聊天服务的 REST 客户端
// 每个方法对应一个服务端接口，失败统一包装为 NetworkRequestFailed
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kama_chat_client/internal/dto/request"
	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/errorx"
)

// Client REST 客户端
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient 创建客户端，timeout <= 0 时使用默认超时
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.DEFAULT_REQUEST_SECS * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// FetchChats GET /chat/fetch
func (c *Client) FetchChats(ctx context.Context) ([]respond.ChatRespond, error) {
	var out []respond.ChatRespond
	if err := c.do(ctx, http.MethodGet, "/chat/fetch", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccessChat POST /chat/create，已存在时服务端返回原会话
func (c *Client) AccessChat(ctx context.Context, userId string) (*respond.ChatRespond, error) {
	var out respond.ChatRespond
	if err := c.do(ctx, http.MethodPost, "/chat/create", request.ChatCreateRequest{UserId: userId}, &out); err != nil {
		return nil, err
	}
	if out.Id == "" {
		return nil, errorx.Newf(errorx.CodeNetworkRequestFailed, "create chat with %s: empty response", userId)
	}
	return &out, nil
}

// FetchMessages GET /message/{chatId}
func (c *Client) FetchMessages(ctx context.Context, chatId string) ([]respond.MessageRespond, error) {
	var out []respond.MessageRespond
	if err := c.do(ctx, http.MethodGet, "/message/"+url.PathEscape(chatId), nil, &out); err != nil {
		return nil, err
	}
	// 部分服务端返回的消息不带 chat 字段
	for i := range out {
		if out[i].Chat.Id == "" {
			out[i].Chat.Id = chatId
		}
	}
	return out, nil
}

// SendMessage POST /message/send，返回携带正式 ID 的消息
func (c *Client) SendMessage(ctx context.Context, chatId, content string) (*respond.MessageRespond, error) {
	var out respond.MessageRespond
	body := request.MessageSendRequest{Content: content, ChatId: chatId}
	if err := c.do(ctx, http.MethodPost, "/message/send", body, &out); err != nil {
		return nil, err
	}
	if out.Id == "" {
		return nil, errorx.Newf(errorx.CodeNetworkRequestFailed, "send message to %s: response without id", chatId)
	}
	if out.Chat.Id == "" {
		out.Chat.Id = chatId
	}
	return &out, nil
}

// SearchContacts GET /user/contact_search?q=
func (c *Client) SearchContacts(ctx context.Context, query string) ([]respond.UserRespond, error) {
	var out []respond.UserRespond
	path := "/user/contact_search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Me GET /user/me
func (c *Client) Me(ctx context.Context) (*respond.UserRespond, error) {
	var out respond.MeRespond
	if err := c.do(ctx, http.MethodGet, "/user/me", nil, &out); err != nil {
		return nil, err
	}
	if out.User.Id == "" {
		return nil, errorx.Wrap(errorx.ErrUnauthorized, errorx.CodeUnauthorized, "current user unknown")
	}
	return &out.User, nil
}

// FetchStatuses GET /status/fetch
func (c *Client) FetchStatuses(ctx context.Context) ([]respond.StatusRespond, error) {
	var out []respond.StatusRespond
	if err := c.do(ctx, http.MethodGet, "/status/fetch", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkStatusViewed POST /status/view/{id}
func (c *Client) MarkStatusViewed(ctx context.Context, statusId string) error {
	return c.do(ctx, http.MethodPost, "/status/view/"+url.PathEscape(statusId), nil, nil)
}

// StatusViewers GET /status/viewers/{id}
func (c *Client) StatusViewers(ctx context.Context, statusId string) ([]respond.UserRespond, error) {
	var out respond.ViewersRespond
	if err := c.do(ctx, http.MethodGet, "/status/viewers/"+url.PathEscape(statusId), nil, &out); err != nil {
		return nil, err
	}
	return out.Viewers, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errorx.Wrapf(err, errorx.CodeInvalidParam, "%s %s: encode body", method, path)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeNetworkRequestFailed, "%s %s", method, path)
	}
	requestId := uuid.NewString()
	req.Header.Set("X-Request-ID", requestId)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeNetworkRequestFailed, "%s %s", method, path)
	}
	defer resp.Body.Close()
	zap.L().Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestId),
		zap.Duration("cost", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errorx.Wrapf(errorx.ErrUnauthorized, errorx.CodeUnauthorized, "%s %s: status %d", method, path, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorx.Wrapf(statusError(resp), errorx.CodeNetworkRequestFailed, "%s %s", method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorx.Wrapf(err, errorx.CodeNetworkRequestFailed, "%s %s: decode response", method, path)
	}
	return nil
}

// statusError 读取服务端的 {"message": "..."} 错误说明
func statusError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload.Message)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
