package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"X402FM/core/access"
	"X402FM/logger"

	"github.com/gorilla/mux"
)

// streamRequestBody POST 方式播放时的请求体（兼容旧前端）
type streamRequestBody struct {
	Token string `json:"token"`
	Range string `json:"range"`
}

// StreamHandler 处理 GET/POST /api/stream/{stream_id}：
// 校验通过后按 Range 头交付音频字节。
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["stream_id"]
	if streamID == "" {
		respondError(w, http.StatusBadRequest, "Invalid streamId")
		return
	}

	token := r.URL.Query().Get("token")
	rangeSpec := r.Header.Get("Range")

	if r.Method == http.MethodPost && r.Body != nil {
		var body streamRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			if body.Token != "" {
				token = body.Token
			}
			if body.Range != "" {
				rangeSpec = body.Range
			}
		}
	}

	track, err := h.validator.Validate(r.Context(), access.ValidateRequest{
		StreamID: streamID,
		Token:    token,
		Wallet:   r.URL.Query().Get("wallet"),
		Referer:  refererOf(r),
	})
	if err != nil {
		h.respondDeny(w, streamID, err)
		return
	}

	audioPath := filepath.Join(h.cfg.UploadDir, filepath.FromSlash(track.AudioPath))
	if _, err := os.Stat(audioPath); err != nil {
		logger.Error("音频文件缺失",
			logger.String("trackId", track.ID),
			logger.String("path", audioPath))
		respondError(w, http.StatusNotFound, "Audio file not found")
		return
	}

	writeStreamingHeaders(w, detectContentType(track.AudioPath, "audio/mpeg"))
	if err := serveFileRange(w, audioPath, rangeSpec); err != nil {
		logger.Error("交付音频失败", logger.String("streamId", streamID), logger.ErrorField(err))
	}
}

// StreamCheckHandler 处理 GET /api/stream/check/{stream_id}：
// 轻量校验端点，页面刷新后用来恢复前端会话状态，不消耗任何东西。
func (h *APIHandler) StreamCheckHandler(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["stream_id"]
	if streamID == "" {
		respondError(w, http.StatusBadRequest, "Invalid streamId")
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		wallet = r.Header.Get("X-Payer-Wallet")
	}

	track, err := h.validator.Validate(r.Context(), access.ValidateRequest{
		StreamID: streamID,
		Token:    r.URL.Query().Get("token"),
		Wallet:   wallet,
		Referer:  refererOf(r),
	})
	if err != nil {
		h.respondDeny(w, streamID, err)
		return
	}

	session, err := h.sessionRepo.GetSessionByID(streamID)
	if err != nil || session == nil {
		// 刚刚通过校验的会话查不到只可能是存储故障
		respondError(w, http.StatusInternalServerError, "Stream check failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"streamId":  session.StreamID,
		"trackId":   session.TrackID,
		"expiresAt": session.ExpiresAt,
		"title":     track.Title,
	})
}

// respondDeny 将校验失败映射为HTTP状态与原因。
// 过期与各类未授权对客户端的含义一致：丢弃缓存的会话并重新购买。
func (h *APIHandler) respondDeny(w http.ResponseWriter, streamID string, err error) {
	switch {
	case errors.Is(err, access.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "Stream not found")
	case errors.Is(err, access.ErrSessionExpired):
		respondError(w, http.StatusForbidden, "Stream expired")
	case errors.Is(err, access.ErrBadOrigin):
		respondError(w, http.StatusForbidden, "Unauthorized: invalid referrer")
	case errors.Is(err, access.ErrBadToken):
		respondError(w, http.StatusForbidden, "Invalid access token")
	case errors.Is(err, access.ErrWalletMismatch):
		respondError(w, http.StatusForbidden, "Unauthorized: Wallet address does not match")
	case errors.Is(err, access.ErrTrackMissing):
		respondError(w, http.StatusNotFound, "Track not found")
	default:
		logger.Error("会话校验出现内部错误", logger.String("streamId", streamID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Stream validation failed")
	}
}

// refererOf 取 Referer，缺失时回退 Origin
func refererOf(r *http.Request) string {
	if ref := r.Header.Get("Referer"); ref != "" {
		return ref
	}
	return r.Header.Get("Origin")
}
