package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"X402FM/cache"
	"X402FM/logger"
	"X402FM/model"

	"github.com/google/uuid"
)

// SessionWriter 会话落库接口，由 repository 层实现
type SessionWriter interface {
	CreateSessionWithPayment(session *model.StreamSession, record *model.PaymentRecord) error
}

// Grant 签发结果，只通过结算响应通道返回一次。
// 访问令牌是会话唯一的长期秘密，任何其他端点都不得再暴露它。
type Grant struct {
	StreamID    string    `json:"streamId"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Issuer mints stream sessions after a confirmed settlement.
type Issuer struct {
	sessions   SessionWriter
	ttl        time.Duration
	tokenBytes int
	now        func() time.Time
}

// NewIssuer 创建会话签发器。TTL和令牌长度在构造时固定，不在调用时读取配置。
func NewIssuer(sessions SessionWriter, ttl time.Duration, tokenBytes int) *Issuer {
	if tokenBytes < 16 {
		// 低于128位熵的令牌可被猜测，拒绝配置
		tokenBytes = 16
	}
	return &Issuer{
		sessions:   sessions,
		ttl:        ttl,
		tokenBytes: tokenBytes,
		now:        time.Now,
	}
}

// IssueSession creates exactly one session and one payment record for a
// confirmed settlement. The insert is a single transaction; a timeout or
// facilitator failure upstream never reaches this point, so a half-formed
// session cannot exist.
func (i *Issuer) IssueSession(ctx context.Context, track *model.Track, payerWallet, txHash string) (*Grant, error) {
	token, err := generateAccessToken(i.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := i.now()
	session := &model.StreamSession{
		StreamID:    uuid.NewString(),
		TrackID:     track.ID,
		PayerWallet: strings.ToLower(payerWallet),
		AccessToken: token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(i.ttl),
	}
	record := &model.PaymentRecord{
		TrackID:   track.ID,
		StreamID:  session.StreamID,
		Amount:    track.Price, // 结算时的价格快照，后续改价不回溯
		TxHash:    txHash,
		CreatedAt: now,
	}

	if err := i.sessions.CreateSessionWithPayment(session, record); err != nil {
		return nil, fmt.Errorf("failed to persist stream session: %w", err)
	}

	// 缓存失败不影响签发，校验路径会回源数据库
	if err := cache.CacheSession(ctx, session); err != nil {
		logger.Warn("缓存流会话失败", logger.String("streamId", session.StreamID), logger.ErrorField(err))
	}

	logger.Info("流会话签发成功",
		logger.String("streamId", session.StreamID),
		logger.String("trackId", track.ID),
		logger.Time("expiresAt", session.ExpiresAt))

	return &Grant{
		StreamID:    session.StreamID,
		AccessToken: token,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// generateAccessToken 生成高熵不可猜测的访问令牌
func generateAccessToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
