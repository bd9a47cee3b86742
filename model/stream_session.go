package model

import "time"

// AuthMode 标识会话的鉴权方式
type AuthMode int

const (
	// AuthModeToken 新会话：携带一次性生成的访问令牌
	AuthModeToken AuthMode = iota
	// AuthModeLegacyWallet 旧会话：签发于令牌机制之前，仅能按钱包地址校验
	AuthModeLegacyWallet
)

// StreamSession is a time-boxed authorization to stream one track.
// Sessions are append-only: a row is never mutated after the insert, and
// expiry is computed from ExpiresAt on every read instead of being flagged.
type StreamSession struct {
	StreamID    string    `json:"streamId"`
	TrackID     string    `json:"trackId"`
	PayerWallet string    `json:"-"` // Lowercased payer address; empty when the payer is unknown
	AccessToken string    `json:"-"` // High-entropy opaque secret, generated once, never rotated
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Mode 根据存储的记录推导鉴权方式，使旧路径可以被单独测试
func (s *StreamSession) Mode() AuthMode {
	if s.AccessToken != "" {
		return AuthModeToken
	}
	return AuthModeLegacyWallet
}

// Expired reports whether the session is past its validity window.
func (s *StreamSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PaymentRecord is the flat audit log entry written alongside each session.
// It is never consulted by the validator.
type PaymentRecord struct {
	ID        int64     `json:"id"`
	TrackID   string    `json:"trackId"`
	StreamID  string    `json:"streamId"`
	Amount    float64   `json:"amount"` // Track price captured at settlement time
	TxHash    string    `json:"txHash"` // Provider reference from the facilitator
	CreatedAt time.Time `json:"createdAt"`
}
