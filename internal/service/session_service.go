// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
	"time"

	"pagepal-go/internal/model"
	"pagepal-go/internal/repository"
	"pagepal-go/pkg/log"

	"gorm.io/gorm"
)

// ErrSessionNotFound 表示目标会话不存在或不属于当前用户。
var ErrSessionNotFound = errors.New("session not found")

// SessionService 定义了会话解析与管理的业务操作。
type SessionService interface {
	// Resolve 判断 (source, user) 是否存在可复用的当日会话。
	// 存在则返回该会话且 isNew=false；否则返回 nil 且 isNew=true，
	// 由调用方在内容准备成功后再创建。查询失败时错误原样上抛，绝不伪造会话。
	Resolve(source string, userID uint) (session *model.Session, isNew bool, err error)
	// Create 在内容准备成功并取得标题后插入新会话。
	// 插入前会再查一次当日会话，命中则直接复用，避免准备重试造成重复会话。
	Create(source, title string, userID uint) (*model.Session, error)
	// History 返回用户全部会话，按创建时间降序。
	History(userID uint) ([]model.Session, error)
	// Messages 返回会话的全部消息快照，按 created_at 升序；会打开会话前校验归属。
	Messages(sessionID, userID uint) ([]model.Message, error)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	now         func() time.Time
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(sessionRepo repository.SessionRepository, messageRepo repository.MessageRepository) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		now:         time.Now,
	}
}

// Resolve 查询 (source, user) 最近的一条会话并做当日判定。
func (s *sessionService) Resolve(source string, userID uint) (*model.Session, bool, error) {
	latest, err := s.sessionRepo.FindLatestBySource(source, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询既有会话失败: %w", err)
	}

	if !sameLocalDay(latest.CreatedAt, s.now()) {
		return nil, true, nil
	}
	return latest, false, nil
}

// Create 插入一条新会话，带当日重复预检。
func (s *sessionService) Create(source, title string, userID uint) (*model.Session, error) {
	if existing, isNew, err := s.Resolve(source, userID); err == nil && !isNew {
		log.Infof("[SessionService] (user=%d, source=%s) 当日会话已存在 id=%d，复用", userID, source, existing.ID)
		return existing, nil
	} else if err != nil {
		return nil, err
	}

	session := &model.Session{
		Source: source,
		Title:  title,
		UserID: userID,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	log.Infof("[SessionService] 创建会话 id=%d (user=%d, source=%s)", session.ID, userID, source)
	return session, nil
}

// History 返回用户会话历史。
func (s *sessionService) History(userID uint) ([]model.Session, error) {
	return s.sessionRepo.FindByUser(userID)
}

// Messages 校验归属后返回会话消息快照。
func (s *sessionService) Messages(sessionID, userID uint) ([]model.Message, error) {
	session, err := s.sessionRepo.FindByID(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return s.messageRepo.ListBySession(sessionID)
}

// sameLocalDay 判断两个时刻是否落在同一个本地日历日。
func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
