package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"X402FM/logger"
	"X402FM/model"
)

// SettleStatus 结算调用的三种结果
type SettleStatus int

const (
	// StatusSettled 支付已确认并完成结算
	StatusSettled SettleStatus = iota
	// StatusPaymentRequired 缺少或无法接受的支付凭证，需返回 402 挑战
	StatusPaymentRequired
	// StatusError 结算过程本身失败（曲目不可支付、facilitator 不可达、超时等）
	StatusError
)

// Resource 标识本次购买所绑定的请求（防止凭证被挪用到其他资源）
type Resource struct {
	Method string
	URL    string
}

// PaymentRequirements is the machine-readable first leg of the x402
// challenge/response handshake. The caller uses it to construct a payment
// payload and retry the same request with an X-Payment header.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"` // Atomic units of the settlement asset
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset,omitempty"`
}

// Challenge 402 响应体，格式遵循 x402 协议
type Challenge struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// SettleResult 一次结算调用的结果
type SettleResult struct {
	Status    SettleStatus
	Payer     string // Payer wallet address reported by the facilitator
	TxHash    string // Provider reference (on-chain transaction hash)
	Challenge *Challenge
	Reason    string
}

// settleRequest facilitator 结算接口的请求体
type settleRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      json.RawMessage     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// settleResponse facilitator 结算接口的响应体
type settleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// 结算窗口上限（秒），与会话TTL同源
const maxTimeoutSeconds = 600

// usdcAsset 各网络上结算资产（USDC）的合约地址
var usdcAsset = map[string]string{
	"arbitrum": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	"base":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

var (
	// ErrNotPayable 曲目缺少收款地址，结算无从谈起
	ErrNotPayable = errors.New("track has no payout address")
	// ErrFacilitator facilitator 不可达或返回异常
	ErrFacilitator = errors.New("facilitator request failed")
)

// Requirements 根据曲目当前价格构造支付要求。
// 价格在每次调用时从曲目记录新鲜读取，不做任何缓存。
func (c *Client) Requirements(track *model.Track, network string, resource Resource) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            "exact",
		Network:           network,
		MaxAmountRequired: dollarsToAtomic(track.Price),
		Resource:          resource.URL,
		Description:       fmt.Sprintf("Access to stream: %s", track.Title),
		MimeType:          "application/json",
		PayTo:             track.ArtistWallet,
		MaxTimeoutSeconds: maxTimeoutSeconds,
		Asset:             usdcAsset[network],
	}
}

// Settle drives one settlement attempt for the given track.
//
// Without a claim it returns StatusPaymentRequired carrying the challenge.
// With a claim it performs exactly one round trip against the facilitator and
// never retries internally; idempotency of duplicate claims is the
// facilitator's concern. A track without a payout address fails before any
// network traffic happens.
func (c *Client) Settle(ctx context.Context, track *model.Track, claim string, network string, resource Resource) SettleResult {
	if track.ArtistWallet == "" {
		return SettleResult{Status: StatusError, Reason: "not payable: " + ErrNotPayable.Error()}
	}

	requirements := c.Requirements(track, network, resource)

	if claim == "" {
		return SettleResult{
			Status: StatusPaymentRequired,
			Challenge: &Challenge{
				X402Version: 1,
				Error:       "X-PAYMENT header is required",
				Accepts:     []PaymentRequirements{requirements},
			},
			Reason: "payment required",
		}
	}

	payload, err := decodeClaim(claim)
	if err != nil {
		logger.Warn("无法解析支付凭证", logger.String("trackId", track.ID), logger.ErrorField(err))
		return SettleResult{
			Status: StatusPaymentRequired,
			Challenge: &Challenge{
				X402Version: 1,
				Error:       "invalid X-PAYMENT header",
				Accepts:     []PaymentRequirements{requirements},
			},
			Reason: "malformed payment payload",
		}
	}

	resp, err := c.postSettle(ctx, settleRequest{
		X402Version:         1,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return SettleResult{Status: StatusError, Reason: "timeout"}
		}
		return SettleResult{Status: StatusError, Reason: err.Error()}
	}

	if !resp.Success {
		// 凭证被拒绝：重新下发挑战，由调用方构造新的凭证重试
		logger.Info("facilitator 拒绝了支付凭证",
			logger.String("trackId", track.ID),
			logger.String("reason", resp.ErrorReason))
		return SettleResult{
			Status: StatusPaymentRequired,
			Challenge: &Challenge{
				X402Version: 1,
				Error:       resp.ErrorReason,
				Accepts:     []PaymentRequirements{requirements},
			},
			Reason: resp.ErrorReason,
		}
	}

	return SettleResult{
		Status: StatusSettled,
		Payer:  resp.Payer,
		TxHash: resp.Transaction,
	}
}

// postSettle 向 facilitator 发起一次结算请求
func (c *Client) postSettle(ctx context.Context, body settleRequest) (*settleResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化结算请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/settle", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建结算请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFacilitator, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取结算响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFacilitator, resp.StatusCode)
	}

	result := &settleResponse{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("解析结算响应失败: %w", err)
	}
	return result, nil
}

// decodeClaim 解码 X-Payment 头。
// 新客户端发送 base64 编码的JSON，旧客户端发送裸JSON，两者都接受。
func decodeClaim(claim string) (json.RawMessage, error) {
	if json.Valid([]byte(claim)) {
		return json.RawMessage(claim), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(claim)
	if err != nil {
		return nil, fmt.Errorf("claim is neither JSON nor base64: %w", err)
	}
	if !json.Valid(decoded) {
		return nil, errors.New("decoded claim is not valid JSON")
	}
	return json.RawMessage(decoded), nil
}

// dollarsToAtomic 将美元价格换算为结算资产的原子单位（6位小数）
func dollarsToAtomic(price float64) string {
	return fmt.Sprintf("%.0f", math.Round(price*1e6))
}
