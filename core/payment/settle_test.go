package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"X402FM/config"
	"X402FM/model"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.Config{
		FacilitatorURL: baseURL,
		StreamTTL:      600 * time.Second,
	})
}

func payableTrack() *model.Track {
	return &model.Track{
		ID:           "track-1",
		Title:        "Test Track",
		Price:        2.50,
		ArtistWallet: "0xartist",
	}
}

func testResource() Resource {
	return Resource{Method: http.MethodPost, URL: "http://localhost:8080/api/pay/track-1"}
}

func validClaim(t *testing.T) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"signature": "0xsig", "from": "0xpayer"})
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(payload)
}

func TestSettleWithoutClaimReturnsChallenge(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result := client.Settle(context.Background(), payableTrack(), "", "arbitrum", testResource())

	if result.Status != StatusPaymentRequired {
		t.Fatalf("status = %v, want StatusPaymentRequired", result.Status)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("facilitator must not be contacted without a claim")
	}
	if result.Challenge == nil || len(result.Challenge.Accepts) != 1 {
		t.Fatal("challenge missing payment requirements")
	}

	req := result.Challenge.Accepts[0]
	if req.Scheme != "exact" {
		t.Fatalf("scheme = %s", req.Scheme)
	}
	// $2.50 in USDC atomic units (6 decimals)
	if req.MaxAmountRequired != "2500000" {
		t.Fatalf("maxAmountRequired = %s, want 2500000", req.MaxAmountRequired)
	}
	if req.PayTo != "0xartist" {
		t.Fatalf("payTo = %s", req.PayTo)
	}
	if req.Network != "arbitrum" {
		t.Fatalf("network = %s", req.Network)
	}
	if req.MaxTimeoutSeconds != 600 {
		t.Fatalf("maxTimeoutSeconds = %d", req.MaxTimeoutSeconds)
	}
	if req.Resource != "http://localhost:8080/api/pay/track-1" {
		t.Fatalf("resource = %s", req.Resource)
	}
}

func TestSettleNotPayableTrack(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	track := payableTrack()
	track.ArtistWallet = ""

	client := testClient(srv.URL)
	result := client.Settle(context.Background(), track, validClaim(t), "arbitrum", testResource())

	if result.Status != StatusError {
		t.Fatalf("status = %v, want StatusError", result.Status)
	}
	// 缺少收款地址必须在任何网络交互之前失败
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("facilitator contacted for a non-payable track")
	}
}

func TestSettleSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req settleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad settle request: %v", err)
		}
		if req.PaymentRequirements.PayTo != "0xartist" {
			t.Errorf("payTo = %s", req.PaymentRequirements.PayTo)
		}
		json.NewEncoder(w).Encode(settleResponse{
			Success:     true,
			Transaction: "0xdeadbeef",
			Network:     "arbitrum",
			Payer:       "0xpayer",
		})
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result := client.Settle(context.Background(), payableTrack(), validClaim(t), "arbitrum", testResource())

	if result.Status != StatusSettled {
		t.Fatalf("status = %v, reason = %s", result.Status, result.Reason)
	}
	if result.TxHash != "0xdeadbeef" {
		t.Fatalf("txHash = %s", result.TxHash)
	}
	if result.Payer != "0xpayer" {
		t.Fatalf("payer = %s", result.Payer)
	}
}

func TestSettleRejectedClaim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(settleResponse{
			Success:     false,
			ErrorReason: "insufficient_funds",
		})
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result := client.Settle(context.Background(), payableTrack(), validClaim(t), "arbitrum", testResource())

	if result.Status != StatusPaymentRequired {
		t.Fatalf("status = %v, want StatusPaymentRequired", result.Status)
	}
	if result.Challenge == nil {
		t.Fatal("rejected claim must carry a fresh challenge")
	}
	if result.Reason != "insufficient_funds" {
		t.Fatalf("reason = %s", result.Reason)
	}
}

func TestSettleMalformedClaim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("facilitator contacted with malformed claim")
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result := client.Settle(context.Background(), payableTrack(), "!!!not-base64!!!", "arbitrum", testResource())

	if result.Status != StatusPaymentRequired {
		t.Fatalf("status = %v, want StatusPaymentRequired", result.Status)
	}
}

func TestSettleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := testClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := client.Settle(ctx, payableTrack(), validClaim(t), "arbitrum", testResource())

	if result.Status != StatusError {
		t.Fatalf("status = %v, want StatusError", result.Status)
	}
	if result.Reason != "timeout" {
		t.Fatalf("reason = %s, want timeout", result.Reason)
	}
}

func TestSettleFacilitatorUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	result := client.Settle(context.Background(), payableTrack(), validClaim(t), "arbitrum", testResource())

	if result.Status != StatusError {
		t.Fatalf("status = %v, want StatusError", result.Status)
	}
}

func TestDecodeClaimAcceptsRawJSON(t *testing.T) {
	raw := `{"from":"0xpayer"}`
	payload, err := decodeClaim(raw)
	if err != nil {
		t.Fatalf("decodeClaim failed: %v", err)
	}
	if string(payload) != raw {
		t.Fatalf("payload = %s", payload)
	}
}

func TestDollarsToAtomic(t *testing.T) {
	cases := []struct {
		price float64
		want  string
	}{
		{2.50, "2500000"},
		{0.01, "10000"},
		{1, "1000000"},
		{19.99, "19990000"},
	}
	for _, tc := range cases {
		if got := dollarsToAtomic(tc.price); got != tc.want {
			t.Errorf("dollarsToAtomic(%v) = %s, want %s", tc.price, got, tc.want)
		}
	}
}
