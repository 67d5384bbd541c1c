package dataclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"todogate/internal/model"
	"todogate/internal/server"
	"todogate/internal/storage"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := storage.Open(filepath.Join(t.TempDir(), "todo.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	srv := server.New(st, server.Options{SessionTTL: time.Hour, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_AuthAndTodoRoundTrip(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	anon := New(Options{Endpoint: ts.URL + "/"})

	if err := anon.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if err := anon.SignUp(ctx, "alice", "pw"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	res, err := anon.SignIn(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	c := anon.WithToken(res.Token)

	who, err := c.Me(ctx)
	if err != nil || who != "alice" {
		t.Fatalf("Me = %q, %v", who, err)
	}

	items, err := c.Todo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %#v", items)
	}

	created, err := c.Todo.Create(ctx, model.CreateItemInput{Status: "call mom"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Status != "call mom" || created.IsDone {
		t.Fatalf("created = %+v", created)
	}

	items, err = c.Todo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("items = %+v", items)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := c.Todo.List(ctx); !IsUnauthorized(err) {
		t.Fatalf("List after sign-out err = %v, want unauthorized", err)
	}
}

func TestClient_APIErrorCarriesServerMessage(t *testing.T) {
	ts := newBackend(t)
	c := New(Options{Endpoint: ts.URL})

	_, err := c.SignIn(context.Background(), "ghost", "pw")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 401 || apiErr.Message == "" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
