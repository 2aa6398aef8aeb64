package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	clevertouch "github.com/hemphen/clevertouch-go"
	"github.com/hemphen/clevertouch-go/internal/config"
	"github.com/hemphen/clevertouch-go/internal/tokenstore"
)

// A resumed account holds no access token, so the first poll fails with an
// auth error and pollOnce answers with one refresh and a retry.
func TestPollOnceRefreshesExpiredSession(t *testing.T) {
	var mu sync.Mutex
	tokenCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokenCalls++
		mu.Unlock()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q, want refresh-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-2","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "human/user/read/"):
			fmt.Fprint(w, `{"code": {"code": "1", "key": "OK", "value": "OK"}, "data": {"user_id": "user-1", "smarthomes": [{"smarthome_id": "home-1", "label": "Cottage"}]}}`)
		case strings.HasSuffix(r.URL.Path, "human/smarthome/read/"):
			fmt.Fprint(w, `{"code": {"code": "1", "key": "OK", "value": "OK"}, "data": {"smarthome_id": "home-1", "label": "Cottage", "devices": []}}`)
		default:
			t.Errorf("unexpected API path %s", r.URL.Path)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	account := clevertouch.NewAccount(clevertouch.Config{
		TokenURL: srv.URL + "/token",
		APIURL:   srv.URL + "/api/v0.1/",
	})
	account.Resume("user@example.com", "refresh-1")

	cfg := &config.Config{
		API: config.APIConfig{
			Email:     "user@example.com",
			TokenFile: filepath.Join(t.TempDir(), "token.json"),
		},
		PollIntervalSeconds: 5,
	}

	var cloudMu sync.Mutex
	if err := pollOnce(account, cfg, nil, nil, &cloudMu); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	mu.Lock()
	calls := tokenCalls
	mu.Unlock()
	if calls != 1 {
		t.Errorf("token endpoint calls = %d, want 1", calls)
	}

	// The rotated refresh token was persisted for the next run.
	state, err := tokenstore.Load(cfg.API.TokenFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.RefreshToken != "refresh-2" {
		t.Errorf("persisted refresh token = %q, want refresh-2", state.RefreshToken)
	}
	if state.Email != "user@example.com" {
		t.Errorf("persisted email = %q", state.Email)
	}
}
