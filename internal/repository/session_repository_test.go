package repository

import (
	"errors"
	"testing"
	"time"

	"pagepal-go/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}, &model.PageChunk{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func TestSessionRepositoryFindLatestBySource(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	const source = "https://example.com/article"
	old := &model.Session{Source: source, Title: "old", UserID: 1, CreatedAt: time.Now().Add(-48 * time.Hour)}
	latest := &model.Session{Source: source, Title: "latest", UserID: 1, CreatedAt: time.Now().Add(-time.Hour)}
	other := &model.Session{Source: "https://other.example.com", Title: "other", UserID: 1, CreatedAt: time.Now()}
	foreign := &model.Session{Source: source, Title: "foreign", UserID: 2, CreatedAt: time.Now()}
	for _, s := range []*model.Session{old, latest, other, foreign} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("创建会话失败: %v", err)
		}
	}

	got, err := repo.FindLatestBySource(source, 1)
	if err != nil {
		t.Fatalf("FindLatestBySource 返回错误: %v", err)
	}
	if got.ID != latest.ID {
		t.Errorf("期望返回最近的会话 id=%d，实际 id=%d (title=%s)", latest.ID, got.ID, got.Title)
	}
}

func TestSessionRepositoryFindLatestBySourceNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	_, err := repo.FindLatestBySource("https://example.com/none", 1)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望 gorm.ErrRecordNotFound，实际: %v", err)
	}
}

func TestSessionRepositoryFindByUserOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	first := &model.Session{Source: "https://a.example.com", UserID: 7, CreatedAt: time.Now().Add(-2 * time.Hour)}
	second := &model.Session{Source: "https://b.example.com", UserID: 7, CreatedAt: time.Now().Add(-time.Hour)}
	for _, s := range []*model.Session{first, second} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("创建会话失败: %v", err)
		}
	}

	sessions, err := repo.FindByUser(7)
	if err != nil {
		t.Fatalf("FindByUser 返回错误: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("期望 2 条会话，实际 %d 条", len(sessions))
	}
	if sessions[0].ID != second.ID {
		t.Errorf("会话历史应按创建时间降序，第一条应为 id=%d，实际 id=%d", second.ID, sessions[0].ID)
	}
}
