package clevertouch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

const (
	testEmail    = "user@example.com"
	testPassword = "hunter2"
)

const testUserJSON = `{"user_id":"user-1","smarthomes":[{"smarthome_id":"home-1","label":"Main house"}]}`

const testHomeJSON = `{
	"smarthome_id":"home-1",
	"label":"Main house",
	"zones":[{"num_zone":"z1","zone_label":"Ground floor"},{"num_zone":"z2","zone_label":"Upstairs"}],
	"devices":[
		{"id":"rad-1","id_device":"C1","label_interface":"Living room","num_zone":"z1",
		 "gv_mode":"0","heating_up":"1",
		 "consigne_confort":"662","consigne_eco":"590","consigne_hg":"446","consigne_boost":"680",
		 "temperature_air":"655",
		 "time_boost":"3600","time_boost_format_chrono":{"d":"0","h":"1","m":"0","s":"30"}},
		{"id":"rad-2","id_device":"C2","label_interface":"Bedroom","num_zone":"z2",
		 "gv_mode":"1","heating_up":"0",
		 "consigne_confort":"662","consigne_eco":"590","consigne_hg":"446","consigne_boost":"680",
		 "temperature_air":"610"},
		{"id":"light-1","id_device":"E1","label_interface":"Hall light","num_zone":"z1","on_off":"1"},
		{"id":"dev-x","id_device":"X9","label_interface":"Mystery","num_zone":"z1"}
	]}`

func envelope(code int, data string) string {
	return fmt.Sprintf(`{"code":{"code":"%d","key":"OK","value":"Success"},"data":%s,"parameters":{}}`, code, data)
}

// fakeCloud stands in for the token endpoint and the API of one deployment.
type fakeCloud struct {
	t   *testing.T
	srv *httptest.Server

	homeJSON   string
	apiCalls   int
	pushForms  []url.Values
	tokenCalls int
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{t: t, homeJSON: testHomeJSON}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/api/human/user/read/", f.api(func(w http.ResponseWriter, r *http.Request) {
		if got := r.PostFormValue("email"); got != testEmail {
			t.Errorf("user read sent email %q, want %q", got, testEmail)
		}
		io.WriteString(w, envelope(1, testUserJSON))
	}))
	mux.HandleFunc("/api/human/smarthome/read/", f.api(func(w http.ResponseWriter, r *http.Request) {
		if got := r.PostFormValue("smarthome_id"); got != "home-1" {
			http.Error(w, "unknown home", http.StatusNotFound)
			return
		}
		io.WriteString(w, envelope(1, f.homeJSON))
	}))
	mux.HandleFunc("/api/human/query/push/", f.api(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.pushForms = append(f.pushForms, r.PostForm)
		io.WriteString(w, envelope(8, "{}"))
	}))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCloud) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls++
	r.ParseForm()
	ok := false
	switch r.PostFormValue("grant_type") {
	case "password":
		ok = r.PostFormValue("username") == testEmail && r.PostFormValue("password") == testPassword
	case "refresh_token":
		ok = r.PostFormValue("refresh_token") == "refresh-1"
	}
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"invalid_grant"}`)
		return
	}
	io.WriteString(w, `{"access_token":"access-1","refresh_token":"refresh-2","expires_in":3600,"token_type":"Bearer"}`)
}

func (f *fakeCloud) api(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls++
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			f.t.Errorf("api call sent Authorization %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

func (f *fakeCloud) config() Config {
	return Config{
		TokenURL: f.srv.URL + "/token",
		APIURL:   f.srv.URL + "/api/",
	}
}

func (f *fakeCloud) session(t *testing.T) *Session {
	t.Helper()
	s := NewSession(f.config())
	if err := s.Authenticate(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return s
}

func (f *fakeCloud) lastPush(t *testing.T) url.Values {
	t.Helper()
	if len(f.pushForms) == 0 {
		t.Fatal("no write query was sent")
	}
	return f.pushForms[len(f.pushForms)-1]
}

func TestAuthenticateAndReadUserData(t *testing.T) {
	cloud := newFakeCloud(t)
	s := cloud.session(t)

	data, err := s.ReadUserData(context.Background())
	if err != nil {
		t.Fatalf("ReadUserData: %v", err)
	}
	if got := data["user_id"]; got != "user-1" {
		t.Errorf("user_id = %v, want user-1", got)
	}
	homes, ok := data["smarthomes"].([]any)
	if !ok || len(homes) != 1 {
		t.Fatalf("smarthomes = %v, want one entry", data["smarthomes"])
	}
}

func TestAuthenticateRejectedStoresNoToken(t *testing.T) {
	cloud := newFakeCloud(t)
	s := NewSession(cloud.config())

	err := s.Authenticate(context.Background(), testEmail, "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Authenticate error = %v, want *AuthError", err)
	}

	_, err = s.ReadUserData(context.Background())
	if !errors.As(err, &authErr) {
		t.Fatalf("ReadUserData after failed auth = %v, want *AuthError", err)
	}
	if cloud.apiCalls != 0 {
		t.Errorf("api was called %d times without a token", cloud.apiCalls)
	}
}

func TestReadWithoutAuthentication(t *testing.T) {
	cloud := newFakeCloud(t)
	s := NewSession(cloud.config())

	var authErr *AuthError
	if _, err := s.ReadHomeData(context.Background(), "home-1"); !errors.As(err, &authErr) {
		t.Fatalf("ReadHomeData = %v, want *AuthError", err)
	}
}

func TestExpiredTokenFailsFast(t *testing.T) {
	cloud := newFakeCloud(t)
	s := cloud.session(t)
	s.expiresAt = time.Now().Add(-time.Minute)

	calls := cloud.apiCalls
	_, err := s.ReadUserData(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("ReadUserData = %v, want *AuthError", err)
	}
	if cloud.apiCalls != calls {
		t.Error("expired token still reached the api")
	}
}

func TestRefreshSession(t *testing.T) {
	cloud := newFakeCloud(t)
	s := NewSession(cloud.config())
	s.Resume(testEmail, "refresh-1")

	var authErr *AuthError
	if _, err := s.ReadUserData(context.Background()); !errors.As(err, &authErr) {
		t.Fatalf("ReadUserData before refresh = %v, want *AuthError", err)
	}

	if err := s.RefreshSession(context.Background()); err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if got := s.RefreshTokenValue(); got != "refresh-2" {
		t.Errorf("refresh token = %q, want rotated refresh-2", got)
	}
	if _, err := s.ReadUserData(context.Background()); err != nil {
		t.Fatalf("ReadUserData after refresh: %v", err)
	}
}

func TestRefreshSessionWithoutToken(t *testing.T) {
	cloud := newFakeCloud(t)
	s := NewSession(cloud.config())

	var authErr *AuthError
	if err := s.RefreshSession(context.Background()); !errors.As(err, &authErr) {
		t.Fatalf("RefreshSession = %v, want *AuthError", err)
	}
}

func TestMalformedBodyIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	s := NewSession(Config{TokenURL: srv.URL + "/token", APIURL: srv.URL + "/api/"})
	s.accessToken = "access-1"

	_, err := s.ReadHomeData(context.Background(), "home-1")
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("ReadHomeData = %v, want *ProtocolError", err)
	}
}

func TestMissingEnvelopeIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"unrelated":true}`)
	}))
	defer srv.Close()

	s := NewSession(Config{TokenURL: srv.URL + "/token", APIURL: srv.URL + "/api/"})
	s.accessToken = "access-1"

	var protoErr *ProtocolError
	if _, err := s.ReadUserData(context.Background()); !errors.As(err, &protoErr) {
		t.Fatalf("ReadUserData = %v, want *ProtocolError", err)
	}
}

func TestServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSession(Config{TokenURL: srv.URL + "/token", APIURL: srv.URL + "/api/"})
	s.accessToken = "access-1"

	_, err := s.ReadUserData(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("ReadUserData = %v, want *ProtocolError", err)
	}
	if protoErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", protoErr.HTTPStatus)
	}
}

func TestUnauthorizedStatusIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSession(Config{TokenURL: srv.URL + "/token", APIURL: srv.URL + "/api/"})
	s.accessToken = "stale"

	var authErr *AuthError
	if _, err := s.ReadUserData(context.Background()); !errors.As(err, &authErr) {
		t.Fatalf("ReadUserData = %v, want *AuthError", err)
	}
}

func TestEnvelopeFailureIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":{"code":"2","key":"ERROR","value":"Invalid request"},"data":{},"parameters":{}}`)
	}))
	defer srv.Close()

	s := NewSession(Config{TokenURL: srv.URL + "/token", APIURL: srv.URL + "/api/"})
	s.accessToken = "access-1"

	_, err := s.ReadUserData(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("ReadUserData = %v, want *StatusError", err)
	}
	if statusErr.Status.Code != 2 || statusErr.Status.Key != "ERROR" {
		t.Errorf("status = %+v", statusErr.Status)
	}
}

func TestWriteQueryEncoding(t *testing.T) {
	cloud := newFakeCloud(t)
	s := cloud.session(t)

	_, err := s.WriteQuery(context.Background(), "home-1", map[string]string{
		"id_device":        "C1",
		"consigne_confort": "707",
	})
	if err != nil {
		t.Fatalf("WriteQuery: %v", err)
	}

	form := cloud.lastPush(t)
	for key, want := range map[string]string{
		"smarthome_id":            "home-1",
		"context":                 "1",
		"peremption":              "15000",
		"query[id_device]":        "C1",
		"query[consigne_confort]": "707",
	} {
		if got := form.Get(key); got != want {
			t.Errorf("form[%s] = %q, want %q", key, got, want)
		}
	}
}

func TestWriteQueryRequiresWriteStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Code 1 is a read success but not a write acknowledgement.
		io.WriteString(w, envelope(1, "{}"))
	}))
	defer srv.Close()

	s := NewSession(Config{TokenURL: srv.URL + "/token", APIURL: srv.URL + "/api/"})
	s.accessToken = "access-1"

	_, err := s.WriteQuery(context.Background(), "home-1", map[string]string{"id_device": "C1"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("WriteQuery = %v, want *StatusError", err)
	}
}
