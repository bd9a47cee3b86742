package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"X402FM/core/payment"
	"X402FM/logger"

	"github.com/gorilla/mux"
)

// payRequestBody 前端随支付请求附带的提示信息
type payRequestBody struct {
	WalletAddress string `json:"walletAddress"`
}

// PayHandler 处理 POST /api/pay/{track_id}。
//
// 无凭证时返回 402 挑战；携带凭证时执行一次结算，
// 结算确认后签发流会话并连同访问令牌一起返回。
func (h *APIHandler) PayHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["track_id"]
	if trackID == "" {
		respondError(w, http.StatusBadRequest, "Invalid trackId")
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("查询曲目失败", logger.String("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to load track")
		return
	}
	if track == nil {
		respondError(w, http.StatusNotFound, "Track not found")
		return
	}

	claim := r.Header.Get("X-Payment")

	var body payRequestBody
	if r.Body != nil {
		// 请求体可选，解析失败不影响结算
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	resource := payment.Resource{
		Method: http.MethodPost,
		URL:    requestResourceURL(r, trackID),
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.StreamTTL)
	defer cancel()

	result := h.payClient.Settle(ctx, track, claim, h.cfg.PaymentNetwork, resource)

	switch result.Status {
	case payment.StatusPaymentRequired:
		respondJSON(w, http.StatusPaymentRequired, result.Challenge)
		return

	case payment.StatusError:
		logger.Error("结算失败",
			logger.String("trackId", trackID),
			logger.String("reason", result.Reason))
		switch {
		case strings.HasPrefix(result.Reason, "not payable"):
			respondError(w, http.StatusBadRequest, "Track artist wallet address not found")
		case result.Reason == "timeout":
			respondError(w, http.StatusGatewayTimeout, "Payment settlement timed out")
		default:
			respondError(w, http.StatusBadGateway, "Payment settlement failed")
		}
		return
	}

	// 结算确认。付款人地址优先取请求体，其次取凭证内容，最后取 facilitator 回执
	payerWallet := body.WalletAddress
	if payerWallet == "" {
		payerWallet = payerFromClaim(claim)
	}
	if payerWallet == "" {
		payerWallet = result.Payer
	}
	if payerWallet == "" {
		logger.Warn("结算成功但未能确定付款人地址，会话将不做钱包校验",
			logger.String("trackId", trackID))
	}

	grant, err := h.issuer.IssueSession(ctx, track, payerWallet, result.TxHash)
	if err != nil {
		logger.Error("签发流会话失败", logger.String("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to create stream session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"streamId":    grant.StreamID,
		"accessToken": grant.AccessToken,
		"expiresAt":   grant.ExpiresAt,
		"message":     "Payment successful",
		"txHash":      result.TxHash,
	})
}

// requestResourceURL 还原本次购买绑定的完整URL（经过反代时以转发头为准）
func requestResourceURL(r *http.Request, trackID string) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return fmt.Sprintf("%s://%s/api/pay/%s", proto, r.Host, trackID)
}

// payerFromClaim 尽力从支付凭证中提取付款人地址
func payerFromClaim(claim string) string {
	if claim == "" {
		return ""
	}
	raw := []byte(claim)
	if !json.Valid(raw) {
		decoded, err := base64.StdEncoding.DecodeString(claim)
		if err != nil {
			return ""
		}
		raw = decoded
	}
	var fields struct {
		PayerAddress string `json:"payerAddress"`
		From         string `json:"from"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	if fields.PayerAddress != "" {
		return fields.PayerAddress
	}
	return fields.From
}
