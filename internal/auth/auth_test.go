package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	t.Setenv(envToken, "")
	st := Store{Path: filepath.Join(t.TempDir(), "creds", "credentials.json")}

	if _, err := st.Load(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("Load before save err = %v, want ErrNotSignedIn", err)
	}

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := st.Save(Session{Username: "alice", Token: "Bearer tok-1", ExpiresAt: &exp}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(st.Path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("credentials perm = %o, want 600", perm)
	}

	sess, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.Username != "alice" || sess.Token != "tok-1" || sess.Source != "file" {
		t.Fatalf("session = %+v", sess)
	}
	if sess.Expired(time.Now()) {
		t.Fatalf("session should not be expired")
	}

	if err := st.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := st.Load(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("Load after delete err = %v", err)
	}
}

func TestStore_EnvOverridesFile(t *testing.T) {
	st := Store{Path: filepath.Join(t.TempDir(), "credentials.json")}
	if err := st.Save(Session{Username: "alice", Token: "file-token"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Setenv(envToken, "env-token")
	t.Setenv(envUser, "bob")

	sess, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.Token != "env-token" || sess.Username != "bob" || sess.Source != "env" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestSession_DisplayNameFallback(t *testing.T) {
	if got := (Session{}).DisplayName(); got != "there" {
		t.Fatalf("DisplayName = %q", got)
	}
	if got := (Session{Username: " alice "}).DisplayName(); got != "alice" {
		t.Fatalf("DisplayName = %q", got)
	}
}
