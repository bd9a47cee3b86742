package server

import (
	"encoding/json"
	"net/http"

	"X402FM/config"
	"X402FM/core/access"
	"X402FM/core/payment"
	"X402FM/logger"
	"X402FM/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo   repository.TrackRepository
	sessionRepo repository.StreamSessionRepository
	validator   *access.Validator
	issuer      *access.Issuer
	payClient   *payment.Client
	cfg         *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	sessionRepo repository.StreamSessionRepository,
	validator *access.Validator,
	issuer *access.Issuer,
	payClient *payment.Client,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:   trackRepo,
		sessionRepo: sessionRepo,
		validator:   validator,
		issuer:      issuer,
		payClient:   payClient,
		cfg:         cfg,
	}
}

// respondJSON 写入JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("写入JSON响应失败", logger.ErrorField(err))
	}
}

// respondError 写入统一格式的错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
