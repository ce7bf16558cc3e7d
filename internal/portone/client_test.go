package portone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitsync/billing/internal/config"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Config{
		PortOne: config.PortOneConfig{
			BaseURL:                server.URL,
			APISecret:              "secret-key",
			StoreID:                "store-1",
			ChannelKey:             "channel-default",
			KakaopayChannelKey:     "channel-kakao",
			TosspaymentsChannelKey: "channel-toss",
			Timeout:                5 * time.Second,
		},
	}
	return NewClient(cfg, zap.NewNop()), server
}

func TestChargeByKey(t *testing.T) {
	var gotAuth string
	var gotBody ChargeRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/payments/pay-123/billing-key" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"payment":{"paidAt":"2026-08-30T10:00:00Z","pgTxId":"tx-1"}}`))
	}))

	resp, err := client.ChargeByKey(context.Background(), "pay-123", ChargeRequest{
		StoreID:    "store-1",
		BillingKey: "bk-1",
		OrderName:  "membership",
		Amount:     Amount{Total: 59000},
		Currency:   "KRW",
	})
	if err != nil {
		t.Fatalf("ChargeByKey: %v", err)
	}
	if gotAuth != "PortOne secret-key" {
		t.Errorf("unexpected authorization header %q", gotAuth)
	}
	if gotBody.BillingKey != "bk-1" || gotBody.Amount.Total != 59000 {
		t.Errorf("unexpected request body %+v", gotBody)
	}
	if resp.Payment.PgTxID != "tx-1" {
		t.Errorf("unexpected response %+v", resp.Payment)
	}
	if len(resp.Raw) == 0 {
		t.Error("expected raw body to be retained")
	}
}

func TestChargeByKeyGatewayError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"type":"PAYMENT_FAILED","message":"insufficient balance"}`))
	}))

	_, err := client.ChargeByKey(context.Background(), "pay-1", ChargeRequest{BillingKey: "bk-1"})
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gerr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("unexpected status %d", gerr.StatusCode)
	}
	if gerr.Type != "PAYMENT_FAILED" || gerr.Message != "insufficient balance" {
		t.Errorf("unexpected parsed error %+v", gerr)
	}
}

func TestChargeByKeyTransportError(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := client.ChargeByKey(context.Background(), "pay-1", ChargeRequest{BillingKey: "bk-1"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Op != "charge" {
		t.Errorf("unexpected op %q", terr.Op)
	}
}

func TestCancelSchedules(t *testing.T) {
	var gotBody CancelSchedulesRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/payment-schedules" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"revokedScheduleIds":["sched-1"]}`))
	}))

	resp, err := client.CancelSchedules(context.Background(), CancelSchedulesRequest{
		ScheduleIDs: []string{"sched-1"},
	})
	if err != nil {
		t.Fatalf("CancelSchedules: %v", err)
	}
	if gotBody.StoreID != "store-1" {
		t.Errorf("expected store id to default, got %q", gotBody.StoreID)
	}
	if !resp.Revoked("sched-1") {
		t.Error("expected sched-1 revoked")
	}
	if resp.Revoked("sched-2") {
		t.Error("sched-2 should not be revoked")
	}
}

func TestGetSchedule(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment-schedules/sched-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("storeId") != "store-1" {
			t.Errorf("expected storeId query, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"id":"sched-9","status":"SUCCEEDED","billingKey":"bk-1","payments":[{"id":"pay-real"}]}`))
	}))

	resp, err := client.GetSchedule(context.Background(), "sched-9")
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if resp.Status != ScheduleStatusSucceeded {
		t.Errorf("unexpected status %q", resp.Status)
	}
	if resp.RealizedPaymentID() != "pay-real" {
		t.Errorf("unexpected realized payment id %q", resp.RealizedPaymentID())
	}
}

func TestGetBillingKey(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/billing-keys/bk-7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"billingKey":"bk-7","methods":[{"type":"BillingKeyPaymentMethodCard","card":{"name":"Shinhan","number":"1234-****-****-5678"}}]}`))
	}))

	info, err := client.GetBillingKey(context.Background(), "bk-7")
	if err != nil {
		t.Fatalf("GetBillingKey: %v", err)
	}
	if len(info.Methods) != 1 || info.Methods[0].Type != MethodTypeCard {
		t.Fatalf("unexpected methods %+v", info.Methods)
	}
	if info.Methods[0].Card.Name != "Shinhan" {
		t.Errorf("unexpected card %+v", info.Methods[0].Card)
	}
}

func TestChannelKeyFor(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	cases := map[string]string{
		"kakaopay":     "channel-kakao",
		"KAKAOPAY":     "channel-kakao",
		"tosspayments": "channel-toss",
		"":             "channel-default",
		"unknown":      "channel-default",
	}
	for provider, want := range cases {
		if got := client.ChannelKeyFor(provider); got != want {
			t.Errorf("ChannelKeyFor(%q) = %q, want %q", provider, got, want)
		}
	}
}
