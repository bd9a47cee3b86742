package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"X402FM/model"

	"github.com/redis/go-redis/v9"
)

// 会话记录创建后不可变，因此可以安全地整条缓存；
// redis 键的过期时间设置为会话的剩余寿命，条目随会话一起消亡。

// sessionEntry 是缓存内部的序列化格式。
// model.StreamSession 对外隐藏令牌和钱包字段，缓存必须完整保留它们。
type sessionEntry struct {
	StreamID    string    `json:"streamId"`
	TrackID     string    `json:"trackId"`
	PayerWallet string    `json:"payerWallet"`
	AccessToken string    `json:"accessToken"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SessionKey 根据流ID生成会话缓存的Redis键
func SessionKey(streamID string) string {
	return fmt.Sprintf("stream:%s", streamID)
}

// CacheSession 将会话记录写入缓存
func CacheSession(ctx context.Context, session *model.StreamSession) error {
	if RedisClient == nil {
		return nil
	}

	remaining := time.Until(session.ExpiresAt)
	if remaining <= 0 {
		return nil
	}

	entry := sessionEntry{
		StreamID:    session.StreamID,
		TrackID:     session.TrackID,
		PayerWallet: session.PayerWallet,
		AccessToken: session.AccessToken,
		CreatedAt:   session.CreatedAt,
		ExpiresAt:   session.ExpiresAt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal stream session: %w", err)
	}

	if err := RedisClient.Set(ctx, SessionKey(session.StreamID), data, remaining).Err(); err != nil {
		return fmt.Errorf("failed to cache stream session: %w", err)
	}
	return nil
}

// GetCachedSession 读取缓存中的会话记录，未命中返回 nil
func GetCachedSession(ctx context.Context, streamID string) (*model.StreamSession, error) {
	if RedisClient == nil {
		return nil, nil
	}

	data, err := RedisClient.Get(ctx, SessionKey(streamID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached stream session: %w", err)
	}

	entry := &sessionEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached stream session: %w", err)
	}
	return &model.StreamSession{
		StreamID:    entry.StreamID,
		TrackID:     entry.TrackID,
		PayerWallet: entry.PayerWallet,
		AccessToken: entry.AccessToken,
		CreatedAt:   entry.CreatedAt,
		ExpiresAt:   entry.ExpiresAt,
	}, nil
}
