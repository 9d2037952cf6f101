package repository

import (
	"pagepal-go/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 接口定义了消息数据的持久化操作。
// 消息只追加与读取；不提供更新或删除。
type MessageRepository interface {
	Append(message *model.Message) error
	ListBySession(sessionID uint) ([]model.Message, error)
}

// messageRepository 是 MessageRepository 接口的 GORM 实现。
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append 插入一条消息记录。
func (r *messageRepository) Append(message *model.Message) error {
	return r.db.Create(message).Error
}

// ListBySession 返回会话内全部消息，按 created_at 升序；
// created_at 相同时按 id 升序，保证同秒写入的两条消息顺序稳定。
// 会话为空时返回空切片。
func (r *messageRepository) ListBySession(sessionID uint) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	err := r.db.
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}
