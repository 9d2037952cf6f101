package repository

import (
	"pagepal-go/internal/model"

	"gorm.io/gorm"
)

// PageChunkRepository 接口定义了页面分块数据的持久化操作。
type PageChunkRepository interface {
	BatchCreate(chunks []*model.PageChunk) error
	FindBySourceHash(sourceHash string) ([]model.PageChunk, error)
	DeleteBySourceHash(sourceHash string) error
}

// pageChunkRepository 是 PageChunkRepository 接口的 GORM 实现。
type pageChunkRepository struct {
	db *gorm.DB
}

// NewPageChunkRepository 创建一个新的 PageChunkRepository 实例。
func NewPageChunkRepository(db *gorm.DB) PageChunkRepository {
	return &pageChunkRepository{db: db}
}

// BatchCreate 批量插入页面分块记录。
func (r *pageChunkRepository) BatchCreate(chunks []*model.PageChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.Create(&chunks).Error
}

// FindBySourceHash 返回某个来源的全部分块，按 chunk_id 升序。
func (r *pageChunkRepository) FindBySourceHash(sourceHash string) ([]model.PageChunk, error) {
	var chunks []model.PageChunk
	err := r.db.
		Where("source_hash = ?", sourceHash).
		Order("chunk_id ASC").
		Find(&chunks).Error
	return chunks, err
}

// DeleteBySourceHash 清理某个来源的既有分块，供流水线重复处理时保持幂等。
func (r *pageChunkRepository) DeleteBySourceHash(sourceHash string) error {
	return r.db.Where("source_hash = ?", sourceHash).Delete(&model.PageChunk{}).Error
}
