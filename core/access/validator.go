package access

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"X402FM/cache"
	"X402FM/logger"
	"X402FM/model"
)

// 校验失败的原因，按检查顺序排列。
// 对客户端而言 Expired 与各种 Unauthorized 的处置一致：清除缓存的会话并重新购买。
var (
	ErrSessionNotFound = errors.New("stream session not found")
	ErrSessionExpired  = errors.New("stream session expired")
	ErrBadOrigin       = errors.New("referer origin not allowed")
	ErrBadToken        = errors.New("invalid access token")
	ErrWalletMismatch  = errors.New("wallet address does not match")
	ErrTrackMissing    = errors.New("track not found for session")
)

// SessionReader 会话查询接口，由 repository 层实现
type SessionReader interface {
	GetSessionByID(streamID string) (*model.StreamSession, error)
}

// TrackReader 曲目查询接口
type TrackReader interface {
	GetTrackByID(id string) (*model.Track, error)
}

// ValidateRequest 一次校验的全部输入
type ValidateRequest struct {
	StreamID string
	Token    string // Presented access token, may be empty
	Wallet   string // Presented payer wallet, legacy sessions only
	Referer  string // Raw Referer/Origin header value, empty when the header is absent
}

// Validator decides whether a stream session grants access to its track.
//
// Validation is pure and repeatable: it reads, never writes, so re-validating
// the same session before expiry always succeeds. That is what makes seek and
// reload work without a re-purchase.
type Validator struct {
	sessions       SessionReader
	tracks         TrackReader
	allowedOrigins []string
	now            func() time.Time
}

// NewValidator 创建会话校验器，来源白名单在构造时固定
func NewValidator(sessions SessionReader, tracks TrackReader, allowedOrigins []string) *Validator {
	return &Validator{
		sessions:       sessions,
		tracks:         tracks,
		allowedOrigins: allowedOrigins,
		now:            time.Now,
	}
}

// Validate runs the deny chain in strict order with short circuit:
// existence, expiry, origin, then token (or the legacy wallet fallback).
// Expiry dominates everything after it: a correct token never rescues an
// expired session.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) (*model.Track, error) {
	session, err := v.lookupSession(ctx, req.StreamID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.Expired(v.now()) {
		return nil, ErrSessionExpired
	}

	// Referer 为空放行：部分内嵌环境会剥掉该头
	if req.Referer != "" && !v.originAllowed(req.Referer) {
		logger.Warn("拒绝来源不明的流请求",
			logger.String("streamId", req.StreamID),
			logger.String("referer", req.Referer))
		return nil, ErrBadOrigin
	}

	switch session.Mode() {
	case model.AuthModeToken:
		// 精确比较，大小写敏感
		if req.Token != session.AccessToken {
			return nil, ErrBadToken
		}
	case model.AuthModeLegacyWallet:
		// 旧会话：按钱包地址校验；没有存钱包的旧记录无条件放行
		if session.PayerWallet != "" {
			if !strings.EqualFold(req.Wallet, session.PayerWallet) {
				return nil, ErrWalletMismatch
			}
		}
	}

	track, err := v.tracks.GetTrackByID(session.TrackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, ErrTrackMissing
	}
	return track, nil
}

// lookupSession 先查缓存，未命中回源数据库并回填
func (v *Validator) lookupSession(ctx context.Context, streamID string) (*model.StreamSession, error) {
	cached, err := cache.GetCachedSession(ctx, streamID)
	if err != nil {
		// 缓存故障降级为未命中
		logger.Warn("读取会话缓存失败", logger.String("streamId", streamID), logger.ErrorField(err))
	}
	if cached != nil {
		return cached, nil
	}

	session, err := v.sessions.GetSessionByID(streamID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		if err := cache.CacheSession(ctx, session); err != nil {
			logger.Warn("回填会话缓存失败", logger.String("streamId", streamID), logger.ErrorField(err))
		}
	}
	return session, nil
}

// originAllowed 将 Referer 解析为主机名后与白名单比对
func (v *Validator) originAllowed(referer string) bool {
	host := refererHost(referer)
	if host == "" {
		return false
	}
	for _, allowed := range v.allowedOrigins {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// refererHost 提取 Referer 的 host[:port] 部分。
// 按整个主机名比对，避免 evil.example/x402music.live 这类路径伪装绕过。
func refererHost(referer string) string {
	if u, err := url.Parse(referer); err == nil && u.Host != "" {
		return u.Host
	}
	// 不带 scheme 的 Origin 形式，如 localhost:3000
	trimmed := strings.TrimSpace(referer)
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
