// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Session 代表一次以天为粒度、绑定单个内容来源的对话会话。
// source 是被讨论页面（或视频）的 URL；title 在内容准备成功后回填。
// 会话由本层惰性创建，且从不删除。
type Session struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Source    string    `gorm:"type:varchar(768);not null;index" json:"source"`
	Title     string    `gorm:"type:varchar(512)" json:"title"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Session) TableName() string {
	return "sessions"
}
