package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/estately/authcore"
	"github.com/estately/authcore/stores/fs"
)

// signinServer answers signin with a session cookie the way authcore does
func signinServer(t *testing.T, maxAge int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultSigninPath:
			var req authcore.SigninRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode signin: %v", err)
			}
			if req.Password != "Valid123!" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(authcore.ErrorResponse{
					StatusCode: http.StatusUnauthorized,
					Code:       "INVALID_CREDENTIALS",
					Message:    "Invalid credentials",
				})
				return
			}
			if !req.RememberMe {
				t.Errorf("expected rememberMe=true")
			}
			http.SetCookie(w, &http.Cookie{Name: authcore.DefaultCookieName, Value: "session-token", MaxAge: maxAge, HttpOnly: true})
			json.NewEncoder(w).Encode(authcore.PublicUser{ID: "u1", Username: "jane", Email: req.Email})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAuthClient_Login_Success(t *testing.T) {
	server := signinServer(t, 3600)
	defer server.Close()

	store := newMemStore()
	client := NewAuthClient(server.URL, store)

	before := time.Now()
	cred, err := client.Login("jane@example.com", "Valid123!", true)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if cred.AccessToken != "session-token" {
		t.Errorf("AccessToken = %v, want session-token", cred.AccessToken)
	}
	if cred.UserID != "u1" || cred.UserEmail != "jane@example.com" || cred.Username != "jane" {
		t.Errorf("user fields = %+v", cred)
	}
	if cred.ExpiresAt.Before(before.Add(59*time.Minute)) || cred.ExpiresAt.After(time.Now().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want about an hour from now", cred.ExpiresAt)
	}

	stored, _ := store.GetCredential(server.URL)
	if stored == nil {
		t.Fatal("credential not stored")
	}
	if stored.AccessToken != cred.AccessToken {
		t.Errorf("stored AccessToken = %v, want %v", stored.AccessToken, cred.AccessToken)
	}
}

func TestAuthClient_Login_InvalidCredentials(t *testing.T) {
	server := signinServer(t, 3600)
	defer server.Close()

	store := newMemStore()
	client := NewAuthClient(server.URL, store)

	_, err := client.Login("jane@example.com", "wrong-password", true)
	if err == nil {
		t.Fatal("Login() should have failed with invalid credentials")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid credentials" {
		t.Errorf("APIError = %+v", apiErr.ErrorResponse)
	}
	if len(store.creds) != 0 {
		t.Error("failed login stored a credential")
	}
}

func TestAuthClient_Login_NoCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authcore.PublicUser{ID: "u1"})
	}))
	defer server.Close()

	client := NewAuthClient(server.URL, newMemStore())
	if _, err := client.Login("jane@example.com", "Valid123!", false); err == nil {
		t.Fatal("Login() should fail when no session cookie is set")
	}
}

func TestAuthClient_Transport_AddsAuthHeader(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemStore()
	store.creds[server.URL] = &ServerCredential{
		AccessToken: "my-token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	}

	client := NewAuthClient(server.URL, store)

	resp, err := client.HTTPClient().Get(server.URL + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if receivedAuth != "Bearer my-token" {
		t.Errorf("Authorization header = %v, want Bearer my-token", receivedAuth)
	}
}

func TestAuthClient_Transport_NoAuthHeader_WhenNoCredential(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemStore()
	client := NewAuthClient(server.URL, store)

	resp, err := client.HTTPClient().Get(server.URL + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if receivedAuth != "" {
		t.Errorf("Authorization header = %v, want empty", receivedAuth)
	}
}

func TestAuthClient_Transport_401ForgetsCredential(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := newMemStore()
	store.creds[server.URL] = &ServerCredential{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	}

	client := NewAuthClient(server.URL, store)

	resp, err := client.HTTPClient().Get(server.URL + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if atomic.LoadInt32(&requestCount) != 1 {
		t.Errorf("request count = %d, want 1", requestCount)
	}
	if client.IsLoggedIn() {
		t.Error("credential should be dropped after 401")
	}
}

func TestAuthClient_Logout(t *testing.T) {
	var signedOut int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultSignoutPath {
			atomic.AddInt32(&signedOut, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemStore()
	store.creds[server.URL] = &ServerCredential{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	}

	client := NewAuthClient(server.URL, store)
	if err := client.Logout(); err != nil {
		t.Errorf("Logout() error = %v", err)
	}
	if _, ok := store.creds[server.URL]; ok {
		t.Error("Logout() did not remove credential")
	}
	if atomic.LoadInt32(&signedOut) != 1 {
		t.Error("Logout() did not call the signout endpoint")
	}
}

func TestAuthClient_Logout_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	store := newMemStore()
	store.creds[url] = &ServerCredential{AccessToken: "token"}

	client := NewAuthClient(url, store)
	if err := client.Logout(); err == nil {
		t.Error("Logout() should report the failed signout request")
	}
	if _, ok := store.creds[url]; ok {
		t.Error("credential should be removed even when the server is down")
	}
}

func TestAuthClient_WithCustomHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemStore()
	customClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	client := NewAuthClient(server.URL, store, WithHTTPClient(customClient))

	if client.HTTPClient().Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", client.HTTPClient().Timeout)
	}

	resp, err := client.HTTPClient().Get(server.URL + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthClient_WithCustomPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/login" {
			t.Errorf("expected /v2/login, got %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "tok", Expires: time.Now().Add(time.Hour)})
		json.NewEncoder(w).Encode(authcore.PublicUser{ID: "u1"})
	}))
	defer server.Close()

	store := newMemStore()
	client := NewAuthClient(server.URL, store, WithSigninPath("/v2/login"), WithCookieName("sid"))

	cred, err := client.Login("jane@example.com", "Valid123!", false)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if cred.AccessToken != "tok" || cred.ExpiresAt.IsZero() {
		t.Errorf("credential = %+v", cred)
	}
}

// TestAuthClient_AgainstServer drives a real authcore server end to end
func TestAuthClient_AgainstServer(t *testing.T) {
	dir := t.TempDir()
	store := fs.NewStore(dir)
	srv := authcore.New(authcore.Config{
		JWTSecret:  strings.Repeat("k", 32),
		BcryptCost: 4,
	}, store, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(srv.Handler())
	defer server.Close()

	signup, _ := json.Marshal(authcore.SignupRequest{Username: "jane", Email: "jane@example.com", Password: "Valid123!"})
	resp, err := http.Post(server.URL+"/api/auth/signup", "application/json", bytes.NewReader(signup))
	if err != nil {
		t.Fatalf("signup error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}

	client := NewAuthClient(server.URL, newMemStore())
	cred, err := client.Login("Jane@Example.com", "Valid123!", false)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if cred.UserEmail != "jane@example.com" {
		t.Errorf("UserEmail = %v, want jane@example.com", cred.UserEmail)
	}

	listing, _ := json.Marshal(authcore.ListingInput{Name: "Loft", Address: "1 Main St", Type: "rent", RegularPrice: 1200})
	resp, err = client.HTTPClient().Post(server.URL+"/api/listing/create", "application/json", bytes.NewReader(listing))
	if err != nil {
		t.Fatalf("create listing error = %v", err)
	}
	var created authcore.Listing
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create listing status = %d, want 201", resp.StatusCode)
	}
	if created.UserRef != cred.UserID {
		t.Errorf("UserRef = %v, want %v", created.UserRef, cred.UserID)
	}

	if err := client.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	resp, err = client.HTTPClient().Post(server.URL+"/api/listing/create", "application/json", bytes.NewReader(listing))
	if err != nil {
		t.Fatalf("create listing error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status after logout = %d, want 401", resp.StatusCode)
	}
}
