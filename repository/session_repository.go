package repository

import (
	"database/sql"
	"fmt"

	"X402FM/db"
	"X402FM/model"
)

// StreamSessionRepository defines the interface for stream session persistence.
// Sessions are write-once: there is no update path by design.
type StreamSessionRepository interface {
	// CreateSessionWithPayment 在同一事务中写入会话和支付流水，
	// 任何一步失败都回滚，保证不会出现只有一半的记录
	CreateSessionWithPayment(session *model.StreamSession, record *model.PaymentRecord) error
	GetSessionByID(streamID string) (*model.StreamSession, error)
}

// mysqlStreamSessionRepository implements StreamSessionRepository for MySQL.
type mysqlStreamSessionRepository struct {
	DB *sql.DB
}

// NewMySQLStreamSessionRepository creates a new instance of mysqlStreamSessionRepository.
func NewMySQLStreamSessionRepository() StreamSessionRepository {
	return &mysqlStreamSessionRepository{DB: db.DB}
}

// CreateSessionWithPayment persists the session and its payment record atomically.
func (r *mysqlStreamSessionRepository) CreateSessionWithPayment(session *model.StreamSession, record *model.PaymentRecord) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for session creation: %w", err)
	}
	defer tx.Rollback()

	sessionQuery := `INSERT INTO stream_sessions (stream_id, track_id, payer_wallet, access_token, created_at, expires_at)
	                  VALUES (?, ?, ?, ?, ?, ?)`
	payerWallet := sql.NullString{String: session.PayerWallet, Valid: session.PayerWallet != ""}
	if _, err := tx.Exec(sessionQuery, session.StreamID, session.TrackID, payerWallet,
		session.AccessToken, session.CreatedAt, session.ExpiresAt); err != nil {
		return fmt.Errorf("failed to insert stream session %s: %w", session.StreamID, err)
	}

	recordQuery := `INSERT INTO payment_records (track_id, stream_id, amount, tx_hash, created_at)
	                 VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.Exec(recordQuery, record.TrackID, record.StreamID, record.Amount,
		record.TxHash, record.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert payment record for session %s: %w", session.StreamID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session creation: %w", err)
	}
	return nil
}

// GetSessionByID retrieves a stream session by its ID.
func (r *mysqlStreamSessionRepository) GetSessionByID(streamID string) (*model.StreamSession, error) {
	query := `SELECT stream_id, track_id, payer_wallet, access_token, created_at, expires_at
	           FROM stream_sessions WHERE stream_id = ?`
	row := r.DB.QueryRow(query, streamID)

	session := &model.StreamSession{}
	var payerWallet sql.NullString
	err := row.Scan(&session.StreamID, &session.TrackID, &payerWallet,
		&session.AccessToken, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Session not found
		}
		return nil, fmt.Errorf("failed to scan stream session %s: %w", streamID, err)
	}
	session.PayerWallet = payerWallet.String
	return session, nil
}
