// Package pipeline 定义了页面向量化的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"pagepal-go/internal/config"
	"pagepal-go/internal/model"
	"pagepal-go/internal/repository"
	"pagepal-go/pkg/embedding"
	"pagepal-go/pkg/es"
	"pagepal-go/pkg/log"
	"pagepal-go/pkg/storage"
	"pagepal-go/pkg/tasks"
)

// Processor 封装了页面向量化处理的所有依赖和逻辑。
type Processor struct {
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
	minioCfg        config.MinIOConfig
	embeddingCfg    config.EmbeddingConfig
	pageChunkRepo   repository.PageChunkRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	embeddingClient embedding.Client,
	esCfg config.ElasticsearchConfig,
	minioCfg config.MinIOConfig,
	embeddingCfg config.EmbeddingConfig,
	pageChunkRepo repository.PageChunkRepository,
) *Processor {
	return &Processor{
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
		minioCfg:        minioCfg,
		embeddingCfg:    embeddingCfg,
		pageChunkRepo:   pageChunkRepo,
	}
}

// Process 是页面向量化的主函数：读取快照、切块落库、逐块向量化并索引。
func (p *Processor) Process(ctx context.Context, task tasks.PageVectorizeTask) error {
	log.Infof("[Processor] 开始处理页面, source_hash: %s, url: %s", task.SourceHash, task.URL)

	// 1. 从 MinIO 读取页面快照
	text, err := storage.GetPageSnapshot(ctx, p.minioCfg.BucketName, task.SourceHash)
	if err != nil {
		return fmt.Errorf("读取页面快照失败: %w", err)
	}
	if text == "" {
		log.Warnf("[Processor] 页面快照为空, 处理中止, source_hash: %s", task.SourceHash)
		return errors.New("页面快照为空")
	}
	log.Infof("[Processor] 快照读取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 文本切块
	chunks := splitText(text, 1000, 100)
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, source_hash: %s", task.SourceHash)
		return errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 文本分块完成, 共 %d 个分块", len(chunks))

	// 3. 分块落库；处理前先清理既有记录以保持幂等
	if err := p.pageChunkRepo.DeleteBySourceHash(task.SourceHash); err != nil {
		log.Warnf("[Processor] 清理 page_chunks 旧记录失败 (source_hash=%s): %v", task.SourceHash, err)
	}
	dbChunks := make([]*model.PageChunk, 0, len(chunks))
	for i, chunk := range chunks {
		dbChunks = append(dbChunks, &model.PageChunk{
			SourceHash:  task.SourceHash,
			URL:         task.URL,
			Title:       task.Title,
			ChunkID:     i,
			TextContent: chunk,
			UserID:      task.UserID,
		})
	}
	if err := p.pageChunkRepo.BatchCreate(dbChunks); err != nil {
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}

	// 4. 逐块向量化并索引到 ES
	for i, chunk := range dbChunks {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, chunk.TextContent)
		if err != nil {
			return fmt.Errorf("块 %d 向量化失败: %w", chunk.ChunkID, err)
		}

		esDoc := model.EsPageChunk{
			VectorID:     fmt.Sprintf("%s_%d", chunk.SourceHash, chunk.ChunkID),
			SourceHash:   chunk.SourceHash,
			URL:          chunk.URL,
			Title:        chunk.Title,
			ChunkID:      chunk.ChunkID,
			TextContent:  chunk.TextContent,
			Vector:       vector,
			ModelVersion: p.embeddingCfg.Model,
			UserID:       chunk.UserID,
		}
		if err := es.IndexChunk(ctx, p.esCfg.IndexName, esDoc); err != nil {
			return fmt.Errorf("索引块 %d 到 Elasticsearch 失败: %w", chunk.ChunkID, err)
		}
		log.Infof("[Processor] 分块 %d/%d 向量化并索引成功", i+1, len(dbChunks))
	}

	log.Infof("[Processor] 页面处理成功完成, source_hash: %s", task.SourceHash)
	return nil
}

// splitText 将长文本按指定大小和重叠进行切分。
func splitText(text string, chunkSize int, chunkOverlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if chunkSize <= chunkOverlap {
		chunkOverlap = 0
	}

	var chunks []string
	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
