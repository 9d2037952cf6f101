package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"pagepal-go/internal/model"
	"pagepal-go/pkg/embedding"
	"pagepal-go/pkg/log"
	"pagepal-go/pkg/page"

	"github.com/elastic/go-elasticsearch/v8"
)

// RetrievalService 接口定义了面向单一来源的页面分块检索。
type RetrievalService interface {
	SearchBySource(ctx context.Context, query, source string, topK int) ([]model.ChunkHit, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	esClient        *elasticsearch.Client
	indexName       string
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, esClient *elasticsearch.Client, indexName string) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		indexName:       indexName,
	}
}

// SearchBySource 对指定来源的页面分块执行 kNN + BM25 混合检索。
// 过滤条件把召回严格限定在该来源的分块内。
func (s *retrievalService) SearchBySource(ctx context.Context, query, source string, topK int) ([]model.ChunkHit, error) {
	sourceHash := page.SourceHash(source)

	// 1. 向量化查询
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	// 2. 构建查询：kNN 主召回，BM25 should 提升词面匹配，filter 限定来源
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK * 10,
			"num_candidates": topK * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"source_hash": sourceHash},
			},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"match": map[string]interface{}{"text_content": query}},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"source_hash": sourceHash},
				},
			},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	// 3. 执行搜索
	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[RetrievalService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	// 4. 解析结果
	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsPageChunk `json:"_source"`
				Score  float64           `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.ChunkHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		hits = append(hits, model.ChunkHit{
			SourceHash:  hit.Source.SourceHash,
			Title:       hit.Source.Title,
			ChunkID:     hit.Source.ChunkID,
			TextContent: hit.Source.TextContent,
			Score:       hit.Score,
		})
	}
	log.Infof("[RetrievalService] source_hash=%s 命中 %d 条分块", sourceHash, len(hits))
	return hits, nil
}
