// Package api talks to the counseling backend: account endpoints, counseling status,
// the voice exchange and photo upload.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/config"
	"github.com/zhouzirui/voicecounsel/internal/media"
	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
	"github.com/zhouzirui/voicecounsel/internal/model/photo"
)

const (
	// 错误响应体最多保留的字节数
	maxErrorBody = 512
	// 默认上传文件名
	defaultPhotoName = "photo.jpg"
)

// Client is a thin HTTP client for the backend. It holds no login state:
// every authenticated call takes the session explicitly.
type Client struct {
	baseURL    string
	cookieName string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieName: "authToken",
		httpClient: httpClient,
	}
}

// NewClientFromConfig builds a client with the configured timeout and cookie name.
func NewClientFromConfig(apiCfg config.APIConfig, authCfg config.AuthConfig) *Client {
	c := NewClient(apiCfg.BaseURL, &http.Client{Timeout: apiCfg.Timeout})
	if authCfg.CookieName != "" {
		c.cookieName = authCfg.CookieName
	}
	return c
}

// CookieName is the name of the cookie carrying the session token.
func (c *Client) CookieName() string {
	return c.cookieName
}

// Login exchanges credentials for a session. The backend answers with the token in a cookie.
func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", nil)
	if err != nil {
		return auth.Session{}, &TransportError{Op: OpLogin, Err: err}
	}
	req.SetBasicAuth(email, password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, OpLogin)
	if err != nil {
		return auth.Session{}, err
	}
	defer resp.Body.Close()
	// 丢弃响应体以便连接复用
	_, _ = io.Copy(io.Discard, resp.Body)

	for _, cookie := range resp.Cookies() {
		if cookie.Name != c.cookieName {
			continue
		}
		session, err := auth.ParseToken(cookie.Value)
		if err != nil {
			return auth.Session{}, &PayloadError{Op: OpLogin, Err: err}
		}
		log.Printf("[api] login succeeded for %s", session.User().Email)
		return session, nil
	}
	return auth.Session{}, ErrMissingCookie
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and logs in with the same credentials.
func (c *Client) Signup(ctx context.Context, email, password string) (auth.Session, error) {
	body, err := json.Marshal(signupRequest{Email: email, Password: password})
	if err != nil {
		return auth.Session{}, fmt.Errorf("marshal signup request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/signup", bytes.NewReader(body))
	if err != nil {
		return auth.Session{}, &TransportError{Op: OpSignup, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, OpSignup)
	if err != nil {
		return auth.Session{}, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	session, err := c.Login(ctx, email, password)
	if err != nil {
		return auth.Session{}, fmt.Errorf("%w: %w", ErrLoginAfterSignup, err)
	}
	return session, nil
}

// CounselingStatus reports whether the user already finished the initial counseling.
func (c *Client) CounselingStatus(ctx context.Context, session auth.Session) (counseling.Status, error) {
	req, err := c.newAuthedRequest(ctx, session, http.MethodGet, "/api/counseling/status", nil)
	if err != nil {
		return counseling.Status{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var status counseling.Status
	if err := c.doJSON(req, OpStatus, &status); err != nil {
		return counseling.Status{}, err
	}
	return status, nil
}

// SendVoice uploads one recording and returns the validated assistant reply.
// sessionID is empty on the first exchange of a conversation.
func (c *Client) SendVoice(ctx context.Context, session auth.Session, rec counseling.Recording, sessionID string) (counseling.ExchangeResult, error) {
	if rec.Empty() {
		return counseling.ExchangeResult{}, media.ErrNoAudio
	}

	body, err := json.Marshal(counseling.VoiceRequest{
		UserAudioBase64: media.EncodeAudio(rec.Data),
		SessionID:       sessionID,
	})
	if err != nil {
		return counseling.ExchangeResult{}, fmt.Errorf("marshal voice request: %w", err)
	}

	req, err := c.newAuthedRequest(ctx, session, http.MethodPost, "/api/counseling/voice", bytes.NewReader(body))
	if err != nil {
		return counseling.ExchangeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var reply counseling.VoiceResponse
	if err := c.doJSON(req, OpVoice, &reply); err != nil {
		return counseling.ExchangeResult{}, err
	}

	if strings.TrimSpace(reply.AssistantAudioBase64) == "" {
		return counseling.ExchangeResult{}, &PayloadError{Op: OpVoice, Err: fmt.Errorf("assistant_audio_base64 is empty")}
	}
	if _, err := media.DecodeAudio(reply.AssistantAudioBase64); err != nil {
		return counseling.ExchangeResult{}, &PayloadError{Op: OpVoice, Err: err}
	}

	result := counseling.ExchangeResult{
		SessionID:    reply.SessionID,
		AudioPayload: reply.AssistantAudioBase64,
	}
	if reply.IsComplete != nil {
		result.IsComplete = *reply.IsComplete
	}
	return result, nil
}

// UploadPhoto posts the image as multipart field "image" and returns the analysis.
func (c *Client) UploadPhoto(ctx context.Context, session auth.Session, p photo.Photo) (photo.UploadResult, error) {
	if len(p.Data) == 0 {
		return photo.UploadResult{}, fmt.Errorf("photo is empty")
	}

	name := p.FileName
	if name == "" {
		name = defaultPhotoName
	}
	contentType := p.MIMEType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return photo.UploadResult{}, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return photo.UploadResult{}, fmt.Errorf("write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return photo.UploadResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newAuthedRequest(ctx, session, http.MethodPost, "/api/photo/upload", &buf)
	if err != nil {
		return photo.UploadResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result photo.UploadResult
	if err := c.doJSON(req, OpPhoto, &result); err != nil {
		return photo.UploadResult{}, err
	}
	return result, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

// newAuthedRequest attaches the session cookie. Anonymous sessions are sent without one
// and the backend decides.
func (c *Client) newAuthedRequest(ctx context.Context, session auth.Session, method, path string, body io.Reader) (*http.Request, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if !session.Anonymous() {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: session.Token})
	}
	return req, nil
}

// do sends req and turns non-2xx responses into *StatusError.
func (c *Client) do(req *http.Request, op Op) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[api] %s %s failed: %v", req.Method, req.URL.Path, err)
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Printf("[api] %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, op Op, out any) error {
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &PayloadError{Op: op, Err: err}
	}
	return nil
}
