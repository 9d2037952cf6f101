package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"pagepal-go/internal/model"
	"pagepal-go/internal/service"
	"pagepal-go/pkg/llm"
	"pagepal-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	log.Init("error", "json", "")
	os.Exit(m.Run())
}

// withTestUser 在上下文中注入一个已认证用户，替代认证中间件。
func withTestUser(user *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", user)
		c.Next()
	}
}

// fakeContentService 是 ContentService 的固定返回实现。
type fakeContentService struct {
	title string
	err   error
}

func (f *fakeContentService) Prepare(ctx context.Context, url string, userID uint) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.title, nil
}

// fakeSessionService 是 SessionService 的固定返回实现。
type fakeSessionService struct {
	session   *model.Session
	isNew     bool
	createErr error
	messages  []model.Message
	msgErr    error
}

func (f *fakeSessionService) Resolve(source string, userID uint) (*model.Session, bool, error) {
	return f.session, f.isNew, nil
}

func (f *fakeSessionService) Create(source, title string, userID uint) (*model.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.Session{ID: 1, Source: source, Title: title, UserID: userID}, nil
}

func (f *fakeSessionService) History(userID uint) ([]model.Session, error) {
	if f.session == nil {
		return []model.Session{}, nil
	}
	return []model.Session{*f.session}, nil
}

func (f *fakeSessionService) Messages(sessionID, userID uint) ([]model.Message, error) {
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return f.messages, nil
}

// fakeChatService 是 ChatService 的固定返回实现。
type fakeChatService struct {
	reply string
	err   error
}

func (f *fakeChatService) Send(ctx context.Context, input service.SendInput, user *model.User) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChatService) StreamReply(ctx context.Context, input service.SendInput, user *model.User, ws llm.MessageWriter, shouldStop func() bool) error {
	return f.err
}

func TestPrepareSuccessShape(t *testing.T) {
	r := gin.New()
	h := NewContentHandler(&fakeContentService{title: "Example Page"}, &fakeSessionService{isNew: true})
	r.POST("/api/embeddings", withTestUser(&model.User{ID: 1}), h.Prepare)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/embeddings", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if body["success"] != true || body["title"] != "Example Page" {
		t.Fatalf("响应形状应为 {success, title}，实际: %v", body)
	}
}

func TestPrepareFailureShape(t *testing.T) {
	r := gin.New()
	h := NewContentHandler(&fakeContentService{err: service.ErrEmptyPage}, &fakeSessionService{})
	r.POST("/api/embeddings", withTestUser(&model.User{ID: 1}), h.Prepare)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/embeddings", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("准备失败期望 502，实际 %d", w.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["success"] != false {
		t.Fatalf("失败响应应包含 success=false，实际: %v", body)
	}
}

func TestChatSendShape(t *testing.T) {
	r := gin.New()
	h := NewChatHandler(&fakeChatService{reply: "Here is a summary"}, nil, nil)
	r.POST("/api/chat", withTestUser(&model.User{ID: 1}), h.Send)

	w := httptest.NewRecorder()
	payload := `{"message":"Summarize","url":"https://example.com","source":"webpage","sessionId":1}`
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["message"] != "Here is a summary" {
		t.Fatalf("响应形状应为 {message}，实际: %v", body)
	}
}

func TestChatSendBusy(t *testing.T) {
	r := gin.New()
	h := NewChatHandler(&fakeChatService{err: service.ErrReplyInFlight}, nil, nil)
	r.POST("/api/chat", withTestUser(&model.User{ID: 1}), h.Send)

	w := httptest.NewRecorder()
	payload := `{"message":"hi","url":"https://example.com","sessionId":1}`
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("回复在途期望 409，实际 %d", w.Code)
	}
}

func TestChatSendNoSession(t *testing.T) {
	r := gin.New()
	h := NewChatHandler(&fakeChatService{err: service.ErrNoActiveSession}, nil, nil)
	r.POST("/api/chat", withTestUser(&model.User{ID: 1}), h.Send)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("无会话期望 400，实际 %d", w.Code)
	}
}

func TestSessionResolveShape(t *testing.T) {
	r := gin.New()
	h := NewSessionHandler(&fakeSessionService{
		session: &model.Session{ID: 7, Source: "https://example.com", Title: "Example", UserID: 1},
		isNew:   false,
	})
	r.GET("/api/v1/sessions/resolve", withTestUser(&model.User{ID: 1}), h.Resolve)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/sessions/resolve?source=https%3A%2F%2Fexample.com", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	var body struct {
		Data struct {
			SessionID uint `json:"sessionId"`
			IsNew     bool `json:"isNew"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if body.Data.SessionID != 7 || body.Data.IsNew {
		t.Fatalf("期望复用会话 id=7，实际: %+v", body.Data)
	}
}

func TestSessionResolveMissingSource(t *testing.T) {
	r := gin.New()
	h := NewSessionHandler(&fakeSessionService{})
	r.GET("/api/v1/sessions/resolve", withTestUser(&model.User{ID: 1}), h.Resolve)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/sessions/resolve", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺少 source 期望 400，实际 %d", w.Code)
	}
}

func TestSummarizeShape(t *testing.T) {
	r := gin.New()
	h := NewSummaryHandler(&fakeSummaryService{summary: "A short summary."})
	r.POST("/api/summary", withTestUser(&model.User{ID: 1}), h.Summarize)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/summary", strings.NewReader(`{"sessionId":1}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["summary"] != "A short summary." {
		t.Fatalf("响应形状应为 {summary}，实际: %v", body)
	}
}

func TestSummarizeUnknownSession(t *testing.T) {
	r := gin.New()
	h := NewSummaryHandler(&fakeSummaryService{err: service.ErrSessionNotFound})
	r.POST("/api/summary", withTestUser(&model.User{ID: 1}), h.Summarize)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/summary", strings.NewReader(`{"sessionId":42}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("不存在的会话期望 404，实际 %d", w.Code)
	}
}

// fakeSummaryService 是 SummaryService 的固定返回实现。
type fakeSummaryService struct {
	summary string
	err     error
}

func (f *fakeSummaryService) Summarize(ctx context.Context, sessionID uint, user *model.User) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}
