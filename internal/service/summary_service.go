package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pagepal-go/internal/config"
	"pagepal-go/internal/model"
	"pagepal-go/internal/repository"
	"pagepal-go/pkg/llm"
	"pagepal-go/pkg/log"
	"pagepal-go/pkg/page"
	"pagepal-go/pkg/storage"

	"gorm.io/gorm"
)

// 快照摘录的最大长度（rune），避免把整页正文塞进提示词。
const snapshotExcerptLimit = 2000

// SummaryService 定义了会话摘要操作。
type SummaryService interface {
	Summarize(ctx context.Context, sessionID uint, user *model.User) (string, error)
}

type summaryService struct {
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	llmClient   llm.Client
}

// NewSummaryService 创建一个新的 SummaryService 实例。
func NewSummaryService(sessionRepo repository.SessionRepository, messageRepo repository.MessageRepository, llmClient llm.Client) SummaryService {
	return &summaryService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		llmClient:   llmClient,
	}
}

// Summarize 基于会话消息记录与页面快照摘录生成摘要。
func (s *summaryService) Summarize(ctx context.Context, sessionID uint, user *model.User) (string, error) {
	session, err := s.sessionRepo.FindByID(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	if session.UserID != user.ID {
		return "", ErrSessionNotFound
	}

	messages, err := s.messageRepo.ListBySession(sessionID)
	if err != nil {
		return "", fmt.Errorf("读取会话消息失败: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Summarize the following conversation about %q (%s).\n", session.Title, session.Source))

	// 页面快照摘录作为补充上下文；读取失败不阻断摘要
	if excerpt := s.snapshotExcerpt(ctx, session.Source); excerpt != "" {
		prompt.WriteString("\nPage content excerpt:\n")
		prompt.WriteString(excerpt)
		prompt.WriteString("\n")
	}

	prompt.WriteString("\nConversation:\n")
	for _, m := range messages {
		speaker := "Assistant"
		if m.IsUser {
			speaker = "User"
		}
		prompt.WriteString(fmt.Sprintf("%s: %s\n", speaker, m.Content))
	}
	prompt.WriteString("\nWrite a concise summary covering the key points discussed.")

	summary, err := s.llmClient.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt.String()},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("生成摘要失败: %w", err)
	}
	return summary, nil
}

func (s *summaryService) snapshotExcerpt(ctx context.Context, source string) string {
	text, err := storage.GetPageSnapshot(ctx, config.Conf.MinIO.BucketName, page.SourceHash(source))
	if err != nil {
		log.Warnf("[SummaryService] 读取页面快照失败 (source=%s): %v", source, err)
		return ""
	}
	if runes := []rune(text); len(runes) > snapshotExcerptLimit {
		return string(runes[:snapshotExcerptLimit])
	}
	return text
}
