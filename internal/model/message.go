package model

import "time"

// Message 代表会话中的一条消息。消息只追加，从不修改或删除；
// 会话内按 created_at 升序构成全序。
type Message struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"sessionId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsUser    bool      `gorm:"column:is_user;not null" json:"isUser"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}
