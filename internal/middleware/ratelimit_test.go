package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/cart/buy", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralBurst = 3
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("user-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_RejectsBeyondBurst(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(1.0 / 60.0)
	config.GeneralBurst = 2
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("user-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

func TestGeneralMiddleware_LimitsPerUser(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(1.0 / 60.0)
	config.GeneralBurst = 1
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("user-1 first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("user-1 second request: expected 429, got %d", rec.Code)
	}

	// 別ユーザーは独立したリミッターを持つ
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("user-2 first request: expected 200, got %d", rec.Code)
	}

	if count := rl.GeneralLimiterCount(); count != 2 {
		t.Errorf("expected 2 general limiter entries, got %d", count)
	}
}

func TestCheckoutMiddleware_IndependentFromGeneral(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(1.0 / 60.0)
	config.GeneralBurst = 1
	config.CheckoutRate = rate.Limit(1.0 / 60.0)
	config.CheckoutBurst = 1
	rl := newTestRateLimiter(t, config)

	general := rl.GeneralMiddleware()(okHandler())
	checkout := rl.CheckoutMiddleware()(okHandler())

	// API全般のバーストを使い切る
	rec := httptest.NewRecorder()
	general.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("general request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	general.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("general request: expected 429, got %d", rec.Code)
	}

	// チェックアウトのリミッターは消費されていない
	rec = httptest.NewRecorder()
	checkout.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout request: expected 200, got %d", rec.Code)
	}

	if count := rl.CheckoutLimiterCount(); count != 1 {
		t.Errorf("expected 1 checkout limiter entry, got %d", count)
	}
}

func TestRateLimitMiddleware_RequiresUserID(t *testing.T) {
	rl := newTestRateLimiter(t, DefaultRateLimiterConfig())
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without a user ID")
	}))

	// コンテキストにユーザーIDがないリクエスト
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))

	if count := rl.GeneralLimiterCount(); count != 1 {
		t.Fatalf("expected 1 limiter entry before cleanup, got %d", count)
	}

	// TTL（CleanupIntervalの2倍）が経過するとエントリは削除される
	deadline := time.Now().Add(2 * time.Second)
	for rl.GeneralLimiterCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected limiter entries to be cleaned up, got %d", count)
	}
}
