package model

import "time"

// PageChunk 对应于数据库中的 'page_chunks' 表。
// 页面快照被切块后先落库，再逐块向量化并索引到 Elasticsearch。
type PageChunk struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceHash  string    `gorm:"type:varchar(40);not null;index" json:"sourceHash"`
	URL         string    `gorm:"type:varchar(2048);not null" json:"url"`
	Title       string    `gorm:"type:varchar(512)" json:"title"`
	ChunkID     int       `gorm:"not null" json:"chunkId"`
	TextContent string    `gorm:"type:text;not null" json:"textContent"`
	UserID      uint      `gorm:"not null" json:"userId"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PageChunk) TableName() string {
	return "page_chunks"
}

// EsPageChunk 是写入 Elasticsearch 索引的文档结构。
type EsPageChunk struct {
	VectorID     string    `json:"vector_id"`
	SourceHash   string    `json:"source_hash"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	ChunkID      int       `json:"chunk_id"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	UserID       uint      `json:"user_id"`
}

// ChunkHit 是检索服务返回给聊天编排层的单条命中。
type ChunkHit struct {
	SourceHash  string  `json:"sourceHash"`
	Title       string  `json:"title"`
	ChunkID     int     `json:"chunkId"`
	TextContent string  `json:"textContent"`
	Score       float64 `json:"score"`
}
