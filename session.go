package clevertouch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultHost is the cloud host of the primary (LVI/Purmo) deployment.
	// Rebranded deployments use the same protocol on a different host.
	DefaultHost = "e3.lvi.eu"

	// DefaultManufacturer selects the OpenID realm on the auth host.
	DefaultManufacturer = "purmo"

	apiPath  = "/api/v0.1/"
	clientID = "app-front"
)

// Envelope status codes the service uses for successful calls.
const (
	statusOKRead  = 1
	statusOKWrite = 8
)

// Config configures a Session. The zero value targets the default cloud.
type Config struct {
	// Host of the cloud deployment, without scheme.
	Host string

	// Manufacturer selects the OpenID realm; defaults to DefaultManufacturer.
	Manufacturer string

	// TokenURL overrides the derived OpenID token endpoint. Intended for
	// tests and nonstandard deployments.
	TokenURL string

	// APIURL overrides the derived API base URL.
	APIURL string

	// HTTPClient overrides the default client (15s timeout).
	HTTPClient *http.Client
}

// Session performs authenticated calls against the cloud API and owns the
// token lifecycle. Raw read calls return the loosely-typed envelope data;
// the typed object model in Account and friends is built on top.
//
// The token is written by Authenticate, Resume and RefreshSession only and
// read by every call. There is no background refresh: an expired token
// surfaces as *AuthError on the next call.
type Session struct {
	httpClient *http.Client
	oauthCfg   *oauth2.Config
	apiBase    string

	email        string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewSession creates a session for the configured cloud deployment. No
// network traffic happens until Authenticate or RefreshSession is called.
func NewSession(cfg Config) *Session {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	manufacturer := cfg.Manufacturer
	if manufacturer == "" {
		manufacturer = DefaultManufacturer
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://auth.%s/realms/%s/protocol/openid-connect/token", host, manufacturer)
	}
	apiBase := cfg.APIURL
	if apiBase == "" {
		apiBase = "https://" + host + apiPath
	}
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Session{
		httpClient: httpClient,
		apiBase:    apiBase,
		oauthCfg: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}

// Email returns the account email the session was authenticated or resumed
// with, or "" before either.
func (s *Session) Email() string { return s.email }

// RefreshTokenValue returns the refresh token currently held, for callers
// that persist it between runs.
func (s *Session) RefreshTokenValue() string { return s.refreshToken }

// Resume seeds the session with a previously stored refresh token. The
// session holds no access token afterwards; call RefreshSession before
// making API calls.
func (s *Session) Resume(email, refreshToken string) {
	s.email = email
	s.refreshToken = refreshToken
	s.accessToken = ""
	s.expiresAt = time.Time{}
}

// Authenticate performs the OpenID password grant and stores the resulting
// tokens. On rejected credentials it returns *AuthError and stores nothing.
func (s *Session) Authenticate(ctx context.Context, email, password string) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauthCfg.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return s.tokenError(err)
	}
	s.email = email
	s.storeToken(token)
	return nil
}

// RefreshSession exchanges the held refresh token for a new access token.
// Refresh is always explicit; nothing in the session calls this on its own.
func (s *Session) RefreshSession(ctx context.Context) error {
	if s.refreshToken == "" {
		return &AuthError{Reason: "no refresh token held"}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken}).Token()
	if err != nil {
		return s.tokenError(err)
	}
	s.storeToken(token)
	return nil
}

func (s *Session) storeToken(token *oauth2.Token) {
	s.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.refreshToken = token.RefreshToken
	}
	s.expiresAt = token.Expiry
}

func (s *Session) tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := retrieveErr.Response.StatusCode
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return &AuthError{Reason: "token endpoint rejected the request", Err: err}
		}
		return &ProtocolError{HTTPStatus: status, Reason: strings.TrimSpace(string(retrieveErr.Body))}
	}
	return &TransportError{URL: s.oauthCfg.Endpoint.TokenURL, Err: err}
}

// ReadUserData fetches the account-wide user data and returns the raw
// envelope data mapping.
func (s *Session) ReadUserData(ctx context.Context) (map[string]any, error) {
	form := url.Values{}
	form.Set("email", s.email)
	result, err := s.read(ctx, "human/user/read/", form)
	if err != nil {
		return nil, err
	}
	return result.data, nil
}

// ReadHomeData fetches the data for one home and returns the raw envelope
// data mapping.
func (s *Session) ReadHomeData(ctx context.Context, homeID string) (map[string]any, error) {
	form := url.Values{}
	form.Set("smarthome_id", homeID)
	result, err := s.read(ctx, "human/smarthome/read/", form)
	if err != nil {
		return nil, err
	}
	return result.data, nil
}

// WriteQuery posts an update query for a home. Each params entry is wrapped
// as query[<key>] the way the push endpoint expects. The raw envelope data
// is returned; confirmed device state is only observable via a re-read.
func (s *Session) WriteQuery(ctx context.Context, homeID string, params map[string]string) (map[string]any, error) {
	form := url.Values{}
	form.Set("smarthome_id", homeID)
	form.Set("context", "1")
	form.Set("peremption", "15000")
	for key, value := range params {
		form.Set(fmt.Sprintf("query[%s]", key), value)
	}

	result, err := s.post(ctx, "human/query/push/", form)
	if err != nil {
		return nil, err
	}
	if result.status.Code != statusOKWrite {
		return nil, &StatusError{Status: result.status}
	}
	return result.data, nil
}

type apiResult struct {
	status     Status
	data       map[string]any
	parameters map[string]any
}

func (s *Session) read(ctx context.Context, endpoint string, form url.Values) (apiResult, error) {
	result, err := s.post(ctx, endpoint, form)
	if err != nil {
		return apiResult{}, err
	}
	if result.status.Code != statusOKRead && result.status.Code != statusOKWrite {
		return apiResult{}, &StatusError{Status: result.status}
	}
	return result, nil
}

func (s *Session) post(ctx context.Context, endpoint string, form url.Values) (apiResult, error) {
	if s.accessToken == "" {
		return apiResult{}, &AuthError{Reason: "not authenticated"}
	}
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return apiResult{}, &AuthError{Reason: "access token expired"}
	}

	endpointURL := s.apiBase + strings.TrimPrefix(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apiResult{}, &TransportError{URL: endpointURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apiResult{}, &TransportError{URL: endpointURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apiResult{}, &AuthError{Reason: fmt.Sprintf("api rejected token (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apiResult{}, &ProtocolError{HTTPStatus: resp.StatusCode, Reason: string(body)}
	}

	var envelope struct {
		Code struct {
			Code  any    `json:"code"`
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"code"`
		Data       map[string]any `json:"data"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apiResult{}, &ProtocolError{Reason: "malformed JSON body: " + err.Error()}
	}
	if envelope.Code.Code == nil {
		return apiResult{}, &ProtocolError{Reason: "response envelope has no status code"}
	}
	code, err := coerceInt(envelope.Code.Code)
	if err != nil {
		return apiResult{}, &ProtocolError{Reason: "response status code is malformed: " + err.Error()}
	}

	return apiResult{
		status:     Status{Code: code, Key: envelope.Code.Key, Value: envelope.Code.Value},
		data:       envelope.Data,
		parameters: envelope.Parameters,
	}, nil
}
