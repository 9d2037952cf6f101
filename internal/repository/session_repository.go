// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"pagepal-go/internal/model"

	"gorm.io/gorm"
)

// SessionRepository 接口定义了会话数据的持久化操作。
// 会话只插入与查询，本层不提供删除。
type SessionRepository interface {
	Create(session *model.Session) error
	FindLatestBySource(source string, userID uint) (*model.Session, error)
	FindByID(id uint) (*model.Session, error)
	FindByUser(userID uint) ([]model.Session, error)
}

// sessionRepository 是 SessionRepository 接口的 GORM 实现。
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create 在数据库中插入一条新的会话记录，id 与 created_at 由存储生成。
func (r *sessionRepository) Create(session *model.Session) error {
	return r.db.Create(session).Error
}

// FindLatestBySource 返回指定用户在某个来源下最近创建的一条会话。
// 不存在时返回 gorm.ErrRecordNotFound。
func (r *sessionRepository) FindLatestBySource(source string, userID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.
		Where("source = ? AND user_id = ?", source, userID).
		Order("created_at DESC").
		Limit(1).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByID 根据主键查找会话。
func (r *sessionRepository) FindByID(id uint) (*model.Session, error) {
	var session model.Session
	err := r.db.First(&session, id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByUser 返回用户的全部会话，按创建时间降序（历史列表用）。
func (r *sessionRepository) FindByUser(userID uint) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}
