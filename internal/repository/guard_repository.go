package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// GuardRepository 定义了基于 Redis 的两类防护操作：
// 1) 会话级回复锁：同一会话在等待回复期间拒绝新的发送；
// 2) 内容准备幂等键：同一用户当天对同一来源的重复准备请求直接复用已得标题。
type GuardRepository interface {
	AcquireReplyLock(ctx context.Context, sessionID uint, ttl time.Duration) (bool, error)
	ReleaseReplyLock(ctx context.Context, sessionID uint) error
	RememberPreparedTitle(ctx context.Context, userID uint, sourceHash, title string, ttl time.Duration) error
	LookupPreparedTitle(ctx context.Context, userID uint, sourceHash string) (string, bool, error)
}

type redisGuardRepository struct {
	redisClient *redis.Client
}

// NewGuardRepository 创建一个新的 GuardRepository 实例。
func NewGuardRepository(redisClient *redis.Client) GuardRepository {
	return &redisGuardRepository{redisClient: redisClient}
}

// AcquireReplyLock 尝试获取会话回复锁。返回 false 表示该会话已有一条回复在途。
// TTL 防止进程异常退出后锁永久滞留。
func (r *redisGuardRepository) AcquireReplyLock(ctx context.Context, sessionID uint, ttl time.Duration) (bool, error) {
	key := replyLockKey(sessionID)
	ok, err := r.redisClient.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire reply lock: %w", err)
	}
	return ok, nil
}

// ReleaseReplyLock 释放会话回复锁。
func (r *redisGuardRepository) ReleaseReplyLock(ctx context.Context, sessionID uint) error {
	if err := r.redisClient.Del(ctx, replyLockKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to release reply lock: %w", err)
	}
	return nil
}

// RememberPreparedTitle 记录当天 (user, source) 的准备结果标题。
func (r *redisGuardRepository) RememberPreparedTitle(ctx context.Context, userID uint, sourceHash, title string, ttl time.Duration) error {
	key := preparedKey(userID, sourceHash)
	if err := r.redisClient.Set(ctx, key, title, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set prepared title: %w", err)
	}
	return nil
}

// LookupPreparedTitle 查询当天 (user, source) 是否已完成内容准备。
// 第二个返回值为 false 表示没有缓存记录。
func (r *redisGuardRepository) LookupPreparedTitle(ctx context.Context, userID uint, sourceHash string) (string, bool, error) {
	title, err := r.redisClient.Get(ctx, preparedKey(userID, sourceHash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get prepared title: %w", err)
	}
	return title, true, nil
}

func replyLockKey(sessionID uint) string {
	return fmt.Sprintf("chat:reply_lock:%d", sessionID)
}

// preparedKey 以本地日历日为粒度，与会话的“当日复用”语义对齐。
func preparedKey(userID uint, sourceHash string) string {
	day := time.Now().Format("2006-01-02")
	return fmt.Sprintf("prepare:%s:%d:%s", day, userID, sourceHash)
}
