package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/estately/authcore/client"
)

func newTestStore(t *testing.T) (*FSCredentialStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	return store, path
}

func TestFSCredentialStore_GetSetCredential(t *testing.T) {
	store, _ := newTestStore(t)

	cred, err := store.GetCredential("http://localhost:8080")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if cred != nil {
		t.Errorf("expected nil credential, got %+v", cred)
	}

	testCred := &client.ServerCredential{
		AccessToken: "test-token",
		UserID:      "u1",
		UserEmail:   "user@example.com",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
		CreatedAt:   time.Now(),
	}
	if err := store.SetCredential("http://localhost:8080", testCred); err != nil {
		t.Fatalf("SetCredential() error = %v", err)
	}

	cred, err = store.GetCredential("http://localhost:8080")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential, got nil")
	}
	if cred.AccessToken != "test-token" || cred.UserID != "u1" {
		t.Errorf("credential = %+v", cred)
	}
}

func TestFSCredentialStore_URLNormalization(t *testing.T) {
	store, _ := newTestStore(t)

	testCred := &client.ServerCredential{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	}
	store.SetCredential("http://localhost:8080/api/v1", testCred)

	if cred, _ := store.GetCredential("http://localhost:8080"); cred == nil {
		t.Error("expected to find credential with normalized URL")
	}
	if cred, _ := store.GetCredential("http://localhost:8080/different/path"); cred == nil {
		t.Error("expected to find credential with different path")
	}
	if cred, _ := store.GetCredential("https://localhost:8080"); cred != nil {
		t.Error("scheme is part of the key")
	}
}

func TestFSCredentialStore_RejectsHostlessURL(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.SetCredential("not a url", &client.ServerCredential{}); err == nil {
		t.Error("SetCredential() should reject a URL without a host")
	}
}

func TestFSCredentialStore_RemoveCredential(t *testing.T) {
	store, _ := newTestStore(t)

	testCred := &client.ServerCredential{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	}
	store.SetCredential("http://localhost:8080", testCred)
	store.SetCredential("http://localhost:9090", testCred)

	if err := store.RemoveCredential("http://localhost:8080"); err != nil {
		t.Fatalf("RemoveCredential() error = %v", err)
	}
	if cred, _ := store.GetCredential("http://localhost:8080"); cred != nil {
		t.Error("credential should be removed")
	}
	if cred, _ := store.GetCredential("http://localhost:9090"); cred == nil {
		t.Error("other credential should still exist")
	}

	servers, err := store.ListServers()
	if err != nil {
		t.Fatalf("ListServers() error = %v", err)
	}
	if len(servers) != 1 || servers[0] != "http://localhost:9090" {
		t.Errorf("ListServers() = %v", servers)
	}
}

func TestFSCredentialStore_SaveAndReload(t *testing.T) {
	store1, path := newTestStore(t)

	store1.SetCredential("http://localhost:8080", &client.ServerCredential{
		AccessToken: "persisted-token",
		UserEmail:   "user@example.com",
		RememberMe:  true,
		ExpiresAt:   time.Now().Add(1 * time.Hour),
		CreatedAt:   time.Now(),
	})
	store1.SetCredential("http://localhost:9090", &client.ServerCredential{
		AccessToken: "stale-token",
		ExpiresAt:   time.Now().Add(-1 * time.Hour),
	})

	if err := store1.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("credentials file not created: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("file permissions = %o, want 0600", mode)
	}

	store2, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	cred, err := store2.GetCredential("http://localhost:8080")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential to be persisted")
	}
	if cred.AccessToken != "persisted-token" || !cred.RememberMe {
		t.Errorf("credential = %+v", cred)
	}
	if cred, _ := store2.GetCredential("http://localhost:9090"); cred != nil {
		t.Error("expired credential should not be persisted")
	}
}

func TestFSCredentialStore_LoadDropsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	data := `{"servers":{"http://old.example.com":{"access_token":"x","token_type":"Bearer","expires_at":"2001-01-01T00:00:00Z","created_at":"2001-01-01T00:00:00Z"}}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	servers, _ := store.ListServers()
	if len(servers) != 0 {
		t.Errorf("ListServers() = %v, want none", servers)
	}
}

func TestFSCredentialStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFSCredentialStore(path, ""); err == nil {
		t.Error("expected an error for a corrupt credentials file")
	}
}

func TestFSCredentialStore_DefaultPath(t *testing.T) {
	store, err := NewFSCredentialStore("", "testapp")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	path := store.Path()
	if filepath.Base(path) != "credentials.json" {
		t.Errorf("path = %s, want credentials.json", path)
	}
	if filepath.Base(filepath.Dir(path)) != "testapp" {
		t.Errorf("path = %s, want it under testapp", path)
	}
}
