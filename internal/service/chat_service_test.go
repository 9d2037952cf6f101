package service

import (
	"context"
	"errors"
	"testing"

	"pagepal-go/internal/model"
)

type chatFixture struct {
	sessionRepo *fakeSessionRepo
	messageRepo *fakeMessageRepo
	guardRepo   *fakeGuardRepo
	llm         *fakeLLM
	svc         ChatService
	user        *model.User
	input       SendInput
}

func newChatFixture(reply string, llmErr error) *chatFixture {
	sessionRepo := newFakeSessionRepo()
	sessionRepo.sessions[1] = &model.Session{ID: 1, Source: "https://example.com/post", Title: "Example Post", UserID: 1}
	messageRepo := &fakeMessageRepo{}
	guardRepo := newFakeGuardRepo()
	llmClient := &fakeLLM{reply: reply, err: llmErr}
	svc := NewChatService(sessionRepo, messageRepo, guardRepo, &fakeRetrieval{}, llmClient)
	return &chatFixture{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		guardRepo:   guardRepo,
		llm:         llmClient,
		svc:         svc,
		user:        &model.User{ID: 1, Username: "alice"},
		input: SendInput{
			Message:   "Summarize this page",
			URL:       "https://example.com/post",
			Kind:      "webpage",
			SessionID: 1,
		},
	}
}

func TestSendPersistsBothMessages(t *testing.T) {
	fx := newChatFixture("Here is a summary", nil)

	reply, err := fx.svc.Send(context.Background(), fx.input, fx.user)
	if err != nil {
		t.Fatalf("Send 返回错误: %v", err)
	}
	if reply != "Here is a summary" {
		t.Fatalf("期望回复 %q，实际 %q", "Here is a summary", reply)
	}

	msgs, _ := fx.messageRepo.ListBySession(1)
	if len(msgs) != 2 {
		t.Fatalf("期望持久化 2 条消息，实际 %d 条", len(msgs))
	}
	if !msgs[0].IsUser || msgs[0].Content != "Summarize this page" {
		t.Errorf("第一条应为用户消息，实际: %+v", msgs[0])
	}
	if msgs[1].IsUser || msgs[1].Content != "Here is a summary" {
		t.Errorf("第二条应为助手回复，实际: %+v", msgs[1])
	}
	if !fx.guardRepo.released {
		t.Error("发送完成后回复锁应被释放")
	}
}

func TestSendCompletionFailureReturnsFixedText(t *testing.T) {
	fx := newChatFixture("", errors.New("upstream timeout"))

	reply, err := fx.svc.Send(context.Background(), fx.input, fx.user)
	if err != nil {
		t.Fatalf("补全失败不应作为错误上抛，实际: %v", err)
	}
	if reply != ErrorReplyText {
		t.Fatalf("期望固定错误文案 %q，实际 %q", ErrorReplyText, reply)
	}

	msgs, _ := fx.messageRepo.ListBySession(1)
	if len(msgs) != 2 {
		t.Fatalf("失败时也应持久化用户消息和错误文案，实际 %d 条", len(msgs))
	}
	if msgs[1].Content != ErrorReplyText {
		t.Errorf("错误文案应像正常回复一样入库，实际: %q", msgs[1].Content)
	}
	if !fx.guardRepo.released {
		t.Error("失败路径同样应释放回复锁")
	}
}

func TestSendEmptyReplyTreatedAsFailure(t *testing.T) {
	fx := newChatFixture("   ", nil)

	reply, err := fx.svc.Send(context.Background(), fx.input, fx.user)
	if err != nil {
		t.Fatalf("Send 返回错误: %v", err)
	}
	if reply != ErrorReplyText {
		t.Fatalf("空回复应替换为固定错误文案，实际 %q", reply)
	}
}

func TestSendRejectedWhileReplyInFlight(t *testing.T) {
	fx := newChatFixture("reply", nil)
	fx.guardRepo.locked = true

	_, err := fx.svc.Send(context.Background(), fx.input, fx.user)
	if !errors.Is(err, ErrReplyInFlight) {
		t.Fatalf("回复在途时应拒绝发送，实际: %v", err)
	}
	if msgs, _ := fx.messageRepo.ListBySession(1); len(msgs) != 0 {
		t.Fatalf("被拒绝的发送不应持久化任何消息，实际 %d 条", len(msgs))
	}
}

func TestSendNoOpWithoutSession(t *testing.T) {
	fx := newChatFixture("reply", nil)

	cases := []SendInput{
		{Message: "", URL: "https://example.com/post", SessionID: 1},
		{Message: "hello", URL: "", SessionID: 1},
		{Message: "hello", URL: "https://example.com/post", SessionID: 0},
	}
	for _, input := range cases {
		if _, err := fx.svc.Send(context.Background(), input, fx.user); !errors.Is(err, ErrNoActiveSession) {
			t.Errorf("输入 %+v 应为 no-op，实际: %v", input, err)
		}
	}
	if msgs, _ := fx.messageRepo.ListBySession(1); len(msgs) != 0 {
		t.Fatalf("no-op 不应持久化任何消息，实际 %d 条", len(msgs))
	}
}

func TestSendRejectsForeignSession(t *testing.T) {
	fx := newChatFixture("reply", nil)
	stranger := &model.User{ID: 99, Username: "mallory"}

	if _, err := fx.svc.Send(context.Background(), fx.input, stranger); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("他人的会话应被拒绝，实际: %v", err)
	}
}

func TestSendComposesHistoryBeforeCurrentTurn(t *testing.T) {
	fx := newChatFixture("second answer", nil)
	_ = fx.messageRepo.Append(&model.Message{SessionID: 1, Content: "first question", IsUser: true})
	_ = fx.messageRepo.Append(&model.Message{SessionID: 1, Content: "first answer", IsUser: false})

	if _, err := fx.svc.Send(context.Background(), fx.input, fx.user); err != nil {
		t.Fatalf("Send 返回错误: %v", err)
	}

	// system + 2 条历史 + 当前问题
	got := fx.llm.lastMessages
	if len(got) != 4 {
		t.Fatalf("期望组装 4 条消息，实际 %d 条", len(got))
	}
	if got[0].Role != "system" {
		t.Errorf("第一条应为 system 提示，实际 role=%s", got[0].Role)
	}
	if got[1].Role != "user" || got[1].Content != "first question" {
		t.Errorf("历史用户消息不符: %+v", got[1])
	}
	if got[2].Role != "assistant" || got[2].Content != "first answer" {
		t.Errorf("历史助手消息不符: %+v", got[2])
	}
	if got[3].Role != "user" || got[3].Content != "Summarize this page" {
		t.Errorf("当前问题应排在最后: %+v", got[3])
	}
}

func TestStreamReplyPersistsFullAnswer(t *testing.T) {
	fx := newChatFixture("streamed answer", nil)
	writer := &collectingWriter{}

	err := fx.svc.StreamReply(context.Background(), fx.input, fx.user, writer, func() bool { return false })
	if err != nil {
		t.Fatalf("StreamReply 返回错误: %v", err)
	}

	msgs, _ := fx.messageRepo.ListBySession(1)
	if len(msgs) != 2 {
		t.Fatalf("期望持久化 2 条消息，实际 %d 条", len(msgs))
	}
	if msgs[1].Content != "streamed answer" {
		t.Errorf("完整回复应在流结束后入库，实际: %q", msgs[1].Content)
	}
	if len(writer.frames) == 0 {
		t.Fatal("流式回复应向连接写入分块")
	}
}

func TestStreamReplyFailurePersistsErrorText(t *testing.T) {
	fx := newChatFixture("", errors.New("stream broken"))
	writer := &collectingWriter{}

	err := fx.svc.StreamReply(context.Background(), fx.input, fx.user, writer, func() bool { return false })
	if err == nil {
		t.Fatal("流式失败应上抛错误供调用方通知连接")
	}

	msgs, _ := fx.messageRepo.ListBySession(1)
	if len(msgs) != 2 || msgs[1].Content != ErrorReplyText {
		t.Fatalf("流式失败应持久化固定错误文案，实际: %+v", msgs)
	}
	if !fx.guardRepo.released {
		t.Error("流式失败同样应释放回复锁")
	}
}

// collectingWriter 收集写入的 websocket 帧。
type collectingWriter struct {
	frames [][]byte
}

func (w *collectingWriter) WriteMessage(messageType int, data []byte) error {
	w.frames = append(w.frames, data)
	return nil
}
