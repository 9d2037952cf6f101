package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pagepal-go/internal/model"
)

func TestSummarizeBuildsTranscriptPrompt(t *testing.T) {
	sessionRepo := newFakeSessionRepo()
	sessionRepo.sessions[1] = &model.Session{ID: 1, Source: "https://example.com/post", Title: "Example Post", UserID: 1}
	messageRepo := &fakeMessageRepo{}
	_ = messageRepo.Append(&model.Message{SessionID: 1, Content: "What is this page about?", IsUser: true})
	_ = messageRepo.Append(&model.Message{SessionID: 1, Content: "It explains sourdough baking.", IsUser: false})
	llmClient := &fakeLLM{reply: "A short summary."}
	svc := NewSummaryService(sessionRepo, messageRepo, llmClient)

	summary, err := svc.Summarize(context.Background(), 1, &model.User{ID: 1})
	if err != nil {
		t.Fatalf("Summarize 返回错误: %v", err)
	}
	if summary != "A short summary." {
		t.Fatalf("期望返回模型生成的摘要，实际 %q", summary)
	}

	if len(llmClient.lastMessages) != 1 {
		t.Fatalf("摘要应为单条 user 提示词，实际 %d 条", len(llmClient.lastMessages))
	}
	prompt := llmClient.lastMessages[0].Content
	if !strings.Contains(prompt, "Example Post") {
		t.Error("提示词应包含会话标题")
	}
	if !strings.Contains(prompt, "User: What is this page about?") {
		t.Error("提示词应包含用户消息记录")
	}
	if !strings.Contains(prompt, "Assistant: It explains sourdough baking.") {
		t.Error("提示词应包含助手消息记录")
	}
}

func TestSummarizeUnknownSession(t *testing.T) {
	svc := NewSummaryService(newFakeSessionRepo(), &fakeMessageRepo{}, &fakeLLM{})

	if _, err := svc.Summarize(context.Background(), 42, &model.User{ID: 1}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("不存在的会话应返回 ErrSessionNotFound，实际: %v", err)
	}
}

func TestSummarizeForeignSession(t *testing.T) {
	sessionRepo := newFakeSessionRepo()
	sessionRepo.sessions[1] = &model.Session{ID: 1, Source: "https://example.com", UserID: 1}
	svc := NewSummaryService(sessionRepo, &fakeMessageRepo{}, &fakeLLM{})

	if _, err := svc.Summarize(context.Background(), 1, &model.User{ID: 2}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("他人的会话应返回 ErrSessionNotFound，实际: %v", err)
	}
}

func TestSummarizeCompletionFailure(t *testing.T) {
	sessionRepo := newFakeSessionRepo()
	sessionRepo.sessions[1] = &model.Session{ID: 1, Source: "https://example.com", UserID: 1}
	llmClient := &fakeLLM{err: errors.New("upstream timeout")}
	svc := NewSummaryService(sessionRepo, &fakeMessageRepo{}, llmClient)

	if _, err := svc.Summarize(context.Background(), 1, &model.User{ID: 1}); err == nil {
		t.Fatal("补全失败应上抛错误")
	}
}
