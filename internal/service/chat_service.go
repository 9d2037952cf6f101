package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pagepal-go/internal/config"
	"pagepal-go/internal/model"
	"pagepal-go/internal/repository"
	"pagepal-go/pkg/llm"
	"pagepal-go/pkg/log"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// ErrorReplyText 是补全调用失败时写入会话的固定助手消息。
const ErrorReplyText = "Sorry an error occurred, please try again."

var (
	// ErrNoActiveSession 表示请求没有绑定有效的来源或会话，发送是 no-op。
	ErrNoActiveSession = errors.New("no active session bound to this request")
	// ErrReplyInFlight 表示该会话已有一条回复在途，本次发送被拒绝。
	ErrReplyInFlight = errors.New("a reply is already in flight for this session")
)

// SendInput 是一次发送的入参。Kind 是来源类型（"webpage" / "youtube video"），
// 仅用于提示词中的称呼。
type SendInput struct {
	Message   string
	URL       string
	Kind      string
	SessionID uint
}

// ChatService 定义了聊天编排操作：校验、乐观持久化、上下文检索、补全调用。
// 每个会话的状态机为 Idle -> AwaitingReply -> Idle，由回复锁保证互斥，
// 并在 defer 清理中无条件回到 Idle。
type ChatService interface {
	Send(ctx context.Context, input SendInput, user *model.User) (string, error)
	StreamReply(ctx context.Context, input SendInput, user *model.User, ws llm.MessageWriter, shouldStop func() bool) error
}

type chatService struct {
	sessionRepo      repository.SessionRepository
	messageRepo      repository.MessageRepository
	guardRepo        repository.GuardRepository
	retrievalService RetrievalService
	llmClient        llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	guardRepo repository.GuardRepository,
	retrievalService RetrievalService,
	llmClient llm.Client,
) ChatService {
	return &chatService{
		sessionRepo:      sessionRepo,
		messageRepo:      messageRepo,
		guardRepo:        guardRepo,
		retrievalService: retrievalService,
		llmClient:        llmClient,
	}
}

// Send 执行一轮完整的问答编排并返回助手回复文本。
// 补全失败不作为错误上抛：固定错误文案会像正常回复一样入库并返回，
// 调用方无需区分，由用户自行重试。
func (s *chatService) Send(ctx context.Context, input SendInput, user *model.User) (string, error) {
	session, err := s.bindSession(input, user)
	if err != nil {
		return "", err
	}

	release, err := s.acquireReply(ctx, session.ID)
	if err != nil {
		return "", err
	}
	defer release()

	history := s.loadHistory(session.ID)

	// 乐观追加：用户消息先入库，失败只记日志，不回滚本轮发送
	s.appendBestEffort(session.ID, input.Message, true)

	messages := s.composeMessages(ctx, session, input, history)

	reply, err := s.llmClient.Complete(ctx, messages, nil)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Errorf("[ChatService] 补全调用失败 (session=%d): %v", session.ID, err)
		} else {
			log.Warnf("[ChatService] 补全返回空回复 (session=%d)", session.ID)
		}
		reply = ErrorReplyText
	}

	s.appendBestEffort(session.ID, reply, false)
	return reply, nil
}

// StreamReply 以流式方式执行一轮问答编排，分块写入 ws 并在结束后持久化完整回复。
func (s *chatService) StreamReply(ctx context.Context, input SendInput, user *model.User, ws llm.MessageWriter, shouldStop func() bool) error {
	session, err := s.bindSession(input, user)
	if err != nil {
		return err
	}

	release, err := s.acquireReply(ctx, session.ID)
	if err != nil {
		return err
	}
	defer release()

	history := s.loadHistory(session.ID)
	s.appendBestEffort(session.ID, input.Message, true)

	messages := s.composeMessages(ctx, session, input, history)

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, interceptor); err != nil {
		log.Errorf("[ChatService] 流式补全失败 (session=%d): %v", session.ID, err)
		s.appendBestEffort(session.ID, ErrorReplyText, false)
		return err
	}

	sendCompletion(ws)

	if fullAnswer := answerBuilder.String(); len(fullAnswer) > 0 {
		s.appendBestEffort(session.ID, fullAnswer, false)
	}
	return nil
}

// bindSession 执行 no-op 守卫：来源与会话 id 缺一不可，且会话必须属于当前用户。
func (s *chatService) bindSession(input SendInput, user *model.User) (*model.Session, error) {
	if strings.TrimSpace(input.Message) == "" || input.URL == "" || input.SessionID == 0 {
		return nil, ErrNoActiveSession
	}
	session, err := s.sessionRepo.FindByID(input.SessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	if session.UserID != user.ID {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// acquireReply 获取会话回复锁，返回释放函数。
func (s *chatService) acquireReply(ctx context.Context, sessionID uint) (func(), error) {
	ttl := time.Duration(config.Conf.Chat.ReplyLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	ok, err := s.guardRepo.AcquireReplyLock(ctx, sessionID, ttl)
	if err != nil {
		return nil, fmt.Errorf("获取回复锁失败: %w", err)
	}
	if !ok {
		return nil, ErrReplyInFlight
	}
	release := func() {
		// 使用后台上下文释放：即使请求被取消也必须回到 Idle
		if err := s.guardRepo.ReleaseReplyLock(context.Background(), sessionID); err != nil {
			log.Errorf("[ChatService] 释放回复锁失败 (session=%d): %v", sessionID, err)
		}
	}
	return release, nil
}

// loadHistory 读取会话已有消息作为补全上下文，失败时降级为空历史。
func (s *chatService) loadHistory(sessionID uint) []model.Message {
	history, err := s.messageRepo.ListBySession(sessionID)
	if err != nil {
		log.Errorf("[ChatService] 读取会话历史失败 (session=%d): %v", sessionID, err)
		return nil
	}
	limit := config.Conf.Chat.HistoryLimit
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// appendBestEffort 持久化一条消息，失败只记日志。
func (s *chatService) appendBestEffort(sessionID uint, content string, isUser bool) {
	msg := &model.Message{SessionID: sessionID, Content: content, IsUser: isUser}
	if err := s.messageRepo.Append(msg); err != nil {
		log.Errorf("[ChatService] 持久化消息失败 (session=%d, isUser=%v): %v", sessionID, isUser, err)
	}
}

// composeMessages 组装 system + 历史 + 当前问题的消息序列。
func (s *chatService) composeMessages(ctx context.Context, session *model.Session, input SendInput, history []model.Message) []llm.Message {
	contextText := s.retrieveContext(ctx, session, input.Message)
	systemMsg := s.buildSystemMessage(session, input.Kind, contextText)

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: input.Message})
	return msgs
}

// retrieveContext 检索当前来源的页面分块，失败时降级为空上下文。
func (s *chatService) retrieveContext(ctx context.Context, session *model.Session, query string) string {
	topK := config.Conf.Chat.TopK
	if topK <= 0 {
		topK = 6
	}
	hits, err := s.retrievalService.SearchBySource(ctx, query, session.Source, topK)
	if err != nil {
		log.Errorf("[ChatService] 检索页面上下文失败 (session=%d): %v", session.ID, err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	for i, h := range hits {
		b.WriteString(fmt.Sprintf("[%d] %s\n", i+1, h.TextContent))
	}
	return b.String()
}

func (s *chatService) buildSystemMessage(session *model.Session, kind, contextText string) string {
	prompt := config.Conf.LLM.Prompt

	refStart := prompt.RefStart
	if refStart == "" {
		refStart = "<<PAGE>>"
	}
	refEnd := prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}
	if kind == "" {
		kind = "webpage"
	}

	var sys strings.Builder
	if prompt.Rules != "" {
		sys.WriteString(prompt.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(fmt.Sprintf("The user is viewing a %s titled %q (%s).\n", kind, session.Title, session.Source))
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := prompt.NoResultText
		if noRes == "" {
			noRes = "(no page content retrieved for this turn)"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// wsWriterInterceptor 是对 MessageWriter 的封装，用于在下发的同时捕获完整回复。
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws llm.MessageWriter) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
