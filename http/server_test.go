package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"phishguard/ml"
	"phishguard/monitoring"
)

func newTestServer(t *testing.T, config ServerConfig, deps Dependencies) *Server {
	t.Helper()
	if deps.Inference == nil {
		_, deps.Inference = newClassifier(t)
	}
	api, err := NewAPI(deps)
	if err != nil {
		t.Fatalf("NewAPI() error = %v", err)
	}
	return NewServer(config, api, nil)
}

func TestRateLimitOnPredict(t *testing.T) {
	config := DefaultServerConfig()
	config.RequestsPerSecond = 0.001
	config.Burst = 1
	srv := newTestServer(t, config, Dependencies{})

	first := postPredict(srv.Handler(), `{"url":"https://github.com"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}
	second := postPredict(srv.Handler(), `{"url":"https://github.com"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}

	// other routes are not limited
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rr.Code)
	}
}

func TestClientRateLimiterPerClient(t *testing.T) {
	limiter := NewClientRateLimiter(0.001, 1, nil)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("first request from client should pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("second request from same client should be limited")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("other client should have its own budget")
	}
}

func TestRequestSizeLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.RateLimitEnabled = false
	config.MaxBodyBytes = 32
	srv := newTestServer(t, config, Dependencies{})

	body := `{"url":"https://example.com/` + strings.Repeat("a", 64) + `"}`
	rr := postPredict(srv.Handler(), body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, DefaultServerConfig(), Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight: expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id missing")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	handler := CORSMiddleware([]string{"https://dashboard.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin must not be allowed")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"internal server error"}` {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	handler := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", "127.0.0.1"})
	if err != nil {
		t.Fatalf("NewClientIPResolver: %v", err)
	}

	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"remote addr", "192.0.2.1:5555", "", "192.0.2.1"},
		{"no port", "192.0.2.7", "", "192.0.2.7"},
		{"untrusted peer ignores header", "192.0.2.1:5555", "203.0.113.9", "192.0.2.1"},
		{"trusted proxy", "10.0.0.1:80", "203.0.113.9", "203.0.113.9"},
		{"chain of proxies", "127.0.0.1:80", "198.51.100.4, 203.0.113.9, 10.1.2.3", "203.0.113.9"},
		{"trusted proxy without header", "10.0.0.1:80", "", "10.0.0.1"},
		{"all hops trusted", "10.0.0.1:80", "10.0.0.5", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := resolver.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientIPResolverRejectsGarbage(t *testing.T) {
	if _, err := NewClientIPResolver([]string{"10.0.0.0/33"}); err == nil {
		t.Error("expected error for bad CIDR")
	}
	if _, err := NewClientIPResolver([]string{"proxy.local"}); err == nil {
		t.Error("expected error for hostname")
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	config := DefaultServerConfig()
	config.RequestsPerSecond = 0.001
	config.Burst = 1
	srv := newTestServer(t, config, Dependencies{})

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"url":"https://github.com"}`))
		req.RemoteAddr = "192.0.2.50:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("rotating X-Forwarded-For let %d requests through, want 1", allowed)
	}
}

func TestPredictionFeedOverWebSocket(t *testing.T) {
	hub := monitoring.NewPredictionHub(nil, []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	config := DefaultServerConfig()
	config.RateLimitEnabled = false
	srv := newTestServer(t, config, Dependencies{Hub: hub})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/predictions"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(`{"url":"http://192.168.0.1/login"}`))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg monitoring.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var result ml.PredictionResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("decode prediction: %v", err)
	}
	if msg.Type != monitoring.PredictionEvent || result.URL != "http://192.168.0.1/login" {
		t.Errorf("unexpected message: %s", data)
	}
}

func TestLoggerMiddlewareSetsRequestContext(t *testing.T) {
	var id string
	var start time.Time
	handler := LoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = GetRequestID(r.Context())
		start = GetStartTime(r.Context())
	}))

	before := time.Now()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if id != "req-42" || rr.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("request id = %q, header %q", id, rr.Header().Get("X-Request-ID"))
	}
	if start.Before(before) || start.After(time.Now()) {
		t.Errorf("start time %v outside request window", start)
	}
	if !GetStartTime(context.Background()).IsZero() {
		t.Error("expected zero start time outside a request")
	}
}
