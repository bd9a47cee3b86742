package payment

import (
	"net/http"
	"time"

	"X402FM/config"
)

// Client x402 支付协调方（facilitator）客户端
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient 创建新的 facilitator 客户端
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.StreamTTL
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Client{
		BaseURL: cfg.FacilitatorURL,
		APIKey:  cfg.FacilitatorAPIKey,
		HTTPClient: &http.Client{
			// 结算是一次阻塞往返，上限即协议允许的最大结算窗口
			Timeout: timeout,
		},
	}
}

// SetBaseURL 设置API基础URL
func (c *Client) SetBaseURL(url string) {
	c.BaseURL = url
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}
