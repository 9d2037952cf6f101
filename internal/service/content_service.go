package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pagepal-go/internal/config"
	"pagepal-go/internal/repository"
	"pagepal-go/pkg/kafka"
	"pagepal-go/pkg/log"
	"pagepal-go/pkg/page"
	"pagepal-go/pkg/storage"
	"pagepal-go/pkg/tasks"
)

// ErrEmptyPage 表示页面抓取成功但没有可用正文。
var ErrEmptyPage = errors.New("page has no extractable content")

// ContentService 定义了内容准备操作：抓取页面、落快照、投递向量化任务。
// 准备成功的标志是取得页面标题；标题随后被会话创建使用。
type ContentService interface {
	Prepare(ctx context.Context, url string, userID uint) (title string, err error)
}

type contentService struct {
	fetcher   page.Fetcher
	guardRepo repository.GuardRepository
}

// NewContentService 创建一个新的 ContentService 实例。
func NewContentService(fetcher page.Fetcher, guardRepo repository.GuardRepository) ContentService {
	return &contentService{
		fetcher:   fetcher,
		guardRepo: guardRepo,
	}
}

// Prepare 为指定来源准备聊天内容。
// 当日已准备过的 (user, source) 直接复用缓存标题，不重复抓取与向量化；
// 这使重试的准备请求保持幂等，不会产生重复的嵌入工作。
func (s *contentService) Prepare(ctx context.Context, url string, userID uint) (string, error) {
	sourceHash := page.SourceHash(url)

	if title, ok, err := s.guardRepo.LookupPreparedTitle(ctx, userID, sourceHash); err != nil {
		log.Errorf("[ContentService] 查询准备缓存失败 (user=%d, url=%s): %v", userID, url, err)
		// 缓存不可用时继续走完整准备流程
	} else if ok {
		log.Infof("[ContentService] 当日已准备过 (user=%d, url=%s)，复用标题", userID, url)
		return title, nil
	}

	// 1. 抓取页面并抽取标题与正文
	article, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("抓取页面失败: %w", err)
	}
	if article.Text == "" {
		return "", ErrEmptyPage
	}

	// 2. 写入页面快照
	bucket := config.Conf.MinIO.BucketName
	if err := storage.PutPageSnapshot(ctx, bucket, sourceHash, article.Text); err != nil {
		return "", fmt.Errorf("保存页面快照失败: %w", err)
	}

	// 3. 投递异步向量化任务
	task := tasks.PageVectorizeTask{
		SourceHash: sourceHash,
		URL:        url,
		Title:      article.Title,
		ObjectKey:  storage.SnapshotObjectName(sourceHash),
		UserID:     userID,
	}
	if err := kafka.ProducePageTask(task); err != nil {
		return "", fmt.Errorf("投递向量化任务失败: %w", err)
	}

	// 4. 记录当日幂等键；失败只记日志，准备本身已成功
	ttl := time.Duration(config.Conf.Chat.PrepareCacheTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := s.guardRepo.RememberPreparedTitle(ctx, userID, sourceHash, article.Title, ttl); err != nil {
		log.Errorf("[ContentService] 记录准备缓存失败 (user=%d, url=%s): %v", userID, url, err)
	}

	log.Infof("[ContentService] 内容准备完成 (user=%d, url=%s, title=%s)", userID, url, article.Title)
	return article.Title, nil
}
