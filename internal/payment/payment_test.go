package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gatewayStub(t *testing.T, verifyResult int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if body["merchant"] != "test-merchant" {
			t.Errorf("merchant = %v", body["merchant"])
		}
		switch r.URL.Path {
		case "/v1/request":
			json.NewEncoder(w).Encode(map[string]any{"result": 100, "trackId": 4242})
		case "/v1/verify":
			json.NewEncoder(w).Encode(map[string]any{"result": verifyResult})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestCreateCheckout(t *testing.T) {
	srv := gatewayStub(t, 100)
	defer srv.Close()

	c := NewClient("test-merchant", "https://bot.example/callback")
	c.SetBaseURL(srv.URL)

	url, trackID, err := c.CreateCheckout(context.Background(), 7, 490000, "اشتراک")
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if trackID != 4242 {
		t.Fatalf("trackID = %d, want 4242", trackID)
	}
	if !strings.HasSuffix(url, "/start/4242") {
		t.Fatalf("url = %q", url)
	}
}

func TestCreateCheckoutRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": 102, "message": "invalid merchant"})
	}))
	defer srv.Close()

	c := NewClient("test-merchant", "")
	c.SetBaseURL(srv.URL)

	if _, _, err := c.CreateCheckout(context.Background(), 7, 490000, "x"); err == nil {
		t.Fatal("expected error for refused request")
	}
}

func TestVerify(t *testing.T) {
	for _, tc := range []struct {
		result int
		paid   bool
	}{
		{100, true},
		{201, true}, // already verified counts as paid
		{102, false},
	} {
		srv := gatewayStub(t, tc.result)
		c := NewClient("test-merchant", "")
		c.SetBaseURL(srv.URL)

		paid, err := c.Verify(context.Background(), 4242)
		srv.Close()
		if err != nil {
			t.Fatalf("Verify(result=%d): %v", tc.result, err)
		}
		if paid != tc.paid {
			t.Fatalf("Verify(result=%d) = %v, want %v", tc.result, paid, tc.paid)
		}
	}
}

func TestVerifyGatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-merchant", "")
	c.SetBaseURL(srv.URL)

	if _, err := c.Verify(context.Background(), 4242); err == nil {
		t.Fatal("expected error when gateway is down")
	}
}
