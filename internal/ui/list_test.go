package ui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"todogate/internal/config"
	"todogate/internal/model"
	"todogate/internal/provider"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAPI struct {
	mu        sync.Mutex
	items     []model.Item
	lists     int
	creates   []model.CreateItemInput
	listErr   error
	createErr error
}

func (f *fakeAPI) List(ctx context.Context) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeAPI) Create(ctx context.Context, in model.CreateItemInput) (model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	if f.createErr != nil {
		return model.Item{}, f.createErr
	}
	it := model.Item{ID: string(rune('a' + len(f.items))), Status: in.Status, IsDone: in.IsDone}
	f.items = append(f.items, it)
	return it, nil
}

func (f *fakeAPI) counts() (lists, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists, len(f.creates)
}

func testKeys() keyMap {
	return newKeyMap(config.Keymap{
		Quit: "q", Add: "a", Up: "k", Down: "j", Confirm: "enter",
		Cancel: "esc", Retry: "r", SignOut: "o", Switch: "tab",
	})
}

func readyView(t *testing.T, api ItemAPI) listView {
	t.Helper()
	v := newListView(1, provider.Ready(api), testKeys(), time.Second, quietLogger)
	v, cmd := v.Update(v.waitForClient()())
	if cmd == nil {
		t.Fatalf("expected the ready transition to issue a fetch")
	}
	v, _ = v.Update(cmd())
	return v
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestListView_AbsentClientIsNoOp(t *testing.T) {
	api := &fakeAPI{}
	never := provider.New(func(ctx context.Context) (ItemAPI, error) { return api, nil }, provider.Options{Logger: quietLogger})
	v := newListView(1, never, testKeys(), time.Second, quietLogger)

	if _, cmd := v.fetchAll(); cmd != nil {
		t.Fatalf("fetchAll issued a command without a client")
	}
	if _, cmd := v.createOne("x"); cmd != nil {
		t.Fatalf("createOne issued a command without a client")
	}
	if _, cmd := v.Update(runes("a")); cmd != nil {
		t.Fatalf("add key issued a command without a client")
	}
	if lists, creates := api.counts(); lists != 0 || creates != 0 {
		t.Fatalf("remote calls observed: lists=%d creates=%d", lists, creates)
	}
	if !strings.Contains(v.View(), "Loading data...") {
		t.Fatalf("expected loading indicator, got:\n%s", v.View())
	}
}

func TestListView_FetchesExactlyOnceOnReady(t *testing.T) {
	api := &fakeAPI{}
	v := newListView(1, provider.Ready[ItemAPI](api), testKeys(), time.Second, quietLogger)
	settled := v.waitForClient()()

	v, cmd := v.Update(settled)
	if cmd == nil {
		t.Fatalf("expected fetch on ready")
	}
	v, _ = v.Update(cmd())

	// Same handle reported again, plus plain re-renders: no new fetch.
	v, cmd = v.Update(settled)
	if cmd != nil {
		t.Fatalf("second ready notification issued a command")
	}
	_ = v.View()
	_ = v.View()

	if lists, _ := api.counts(); lists != 1 {
		t.Fatalf("List called %d times, want 1", lists)
	}
	if v.state != listReady {
		t.Fatalf("state = %v, want ready", v.state)
	}
}

func TestListView_ShowsFetchedItems(t *testing.T) {
	api := &fakeAPI{items: []model.Item{{ID: "1", Status: "buy milk", IsDone: false}}}
	v := readyView(t, api)

	if len(v.items) != 1 || v.items[0].Status != "buy milk" {
		t.Fatalf("items = %+v", v.items)
	}
	if !strings.Contains(v.View(), "buy milk") {
		t.Fatalf("view does not show the item:\n%s", v.View())
	}
}

func TestListView_EmptyCollection(t *testing.T) {
	v := readyView(t, &fakeAPI{})

	if len(v.items) != 0 {
		t.Fatalf("items = %+v", v.items)
	}
	if v.fetchErr != nil {
		t.Fatalf("fetchErr = %v", v.fetchErr)
	}
	if !strings.Contains(v.View(), "No todos yet") {
		t.Fatalf("expected empty-state text:\n%s", v.View())
	}
}

func TestListView_CreateThenSingleRefetch(t *testing.T) {
	api := &fakeAPI{}
	v := readyView(t, api)
	listsBefore, _ := api.counts()

	v, _ = v.Update(runes("a"))
	if !v.adding {
		t.Fatalf("add key did not open the prompt")
	}
	v, _ = v.Update(runes("call mom"))
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("confirm did not issue a create")
	}

	v, refetch := v.Update(cmd())
	if refetch == nil {
		t.Fatalf("create did not issue a refetch")
	}
	v, follow := v.Update(refetch())
	if follow != nil {
		t.Fatalf("refetch issued a further command")
	}

	want := []model.CreateItemInput{{Status: "call mom", IsDone: false}}
	if !reflect.DeepEqual(api.creates, want) {
		t.Fatalf("creates = %+v, want %+v", api.creates, want)
	}
	if lists, _ := api.counts(); lists != listsBefore+1 {
		t.Fatalf("List called %d times after create, want exactly 1", lists-listsBefore)
	}
	if len(v.items) != 1 || v.items[0].Status != "call mom" {
		t.Fatalf("items = %+v", v.items)
	}
}

func TestListView_EmptyDescriptionPassesThrough(t *testing.T) {
	api := &fakeAPI{}
	v := readyView(t, api)

	v, _ = v.Update(runes("a"))
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("confirm with empty input did not issue a create")
	}
	v.Update(cmd())

	if len(api.creates) != 1 || api.creates[0].Status != "" {
		t.Fatalf("creates = %+v", api.creates)
	}
}

func TestListView_CancelDoesNotCreate(t *testing.T) {
	api := &fakeAPI{}
	v := readyView(t, api)

	v, _ = v.Update(runes("a"))
	v, _ = v.Update(runes("nope"))
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd != nil {
		t.Fatalf("cancel issued a command")
	}
	if v.adding {
		t.Fatalf("prompt still open after cancel")
	}
	if _, creates := api.counts(); creates != 0 {
		t.Fatalf("create called %d times", creates)
	}
}

func TestListView_FetchTwiceIsIdempotent(t *testing.T) {
	api := &fakeAPI{items: []model.Item{{ID: "1", Status: "a"}, {ID: "2", Status: "b", IsDone: true}}}
	v := readyView(t, api)
	first := append([]model.Item(nil), v.items...)

	v, cmd := v.fetchAll()
	v, _ = v.Update(cmd())

	if !reflect.DeepEqual(first, v.items) {
		t.Fatalf("snapshot changed: %+v vs %+v", first, v.items)
	}
}

func TestListView_StaleFetchResultIsDropped(t *testing.T) {
	api := &fakeAPI{}
	v := readyView(t, api)

	v, older := v.fetchAll()
	api.items = []model.Item{{ID: "1", Status: "newer"}}
	v, newer := v.fetchAll()

	newerMsg := newer()
	api.items = nil
	olderMsg := fetchedMsg{view: v.id, seq: older().(fetchedMsg).seq, items: []model.Item{{ID: "0", Status: "older"}}}

	v, _ = v.Update(newerMsg)
	v, _ = v.Update(olderMsg)

	if len(v.items) != 1 || v.items[0].Status != "newer" {
		t.Fatalf("items = %+v, want the newer fetch's result", v.items)
	}
	if v.inflight != 0 {
		t.Fatalf("inflight = %d", v.inflight)
	}
}

func TestListView_FetchFailureKeepsSnapshotAndOffersRetry(t *testing.T) {
	api := &fakeAPI{items: []model.Item{{ID: "1", Status: "buy milk"}}}
	v := readyView(t, api)

	api.listErr = errors.New("connection refused")
	v, cmd := v.Update(runes("r"))
	if cmd == nil {
		t.Fatalf("retry key did not fetch")
	}
	v, _ = v.Update(cmd())

	if v.fetchErr == nil {
		t.Fatalf("expected fetch error to be recorded")
	}
	if len(v.items) != 1 {
		t.Fatalf("snapshot lost on failure: %+v", v.items)
	}
	view := v.View()
	if !strings.Contains(view, "connection refused") || !strings.Contains(view, "retry") {
		t.Fatalf("view does not surface the failure:\n%s", view)
	}

	api.listErr = nil
	v, cmd = v.Update(runes("r"))
	v, _ = v.Update(cmd())
	if v.fetchErr != nil {
		t.Fatalf("fetchErr not cleared after successful retry: %v", v.fetchErr)
	}
}

func TestListView_CreateFailureIsSurfacedAndStillRefetches(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("forbidden")}
	v := readyView(t, api)
	listsBefore, _ := api.counts()

	v, cmd := v.createOne("call mom")
	v, refetch := v.Update(cmd())
	if refetch == nil {
		t.Fatalf("failed create did not refetch")
	}
	v, _ = v.Update(refetch())

	if lists, _ := api.counts(); lists != listsBefore+1 {
		t.Fatalf("List called %d times after failed create, want 1", lists-listsBefore)
	}
	if v.createErr == nil {
		t.Fatalf("create error hidden by the refetch")
	}
	if !strings.Contains(v.View(), "forbidden") {
		t.Fatalf("view does not show the create error:\n%s", v.View())
	}
}

func TestListView_ClientFailureShowsErrorState(t *testing.T) {
	failing := provider.New(func(ctx context.Context) (ItemAPI, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, provider.Options{Logger: quietLogger})
	failing.Start(context.Background())

	v := newListView(1, failing, testKeys(), time.Second, quietLogger)
	v, cmd := v.Update(v.waitForClient()())
	if cmd != nil {
		t.Fatalf("failed client issued a command")
	}
	if v.state != listFailed {
		t.Fatalf("state = %v, want failed", v.state)
	}
	if !strings.Contains(v.View(), "connection refused") {
		t.Fatalf("view does not show the failure:\n%s", v.View())
	}
	if _, cmd := v.fetchAll(); cmd != nil {
		t.Fatalf("fetchAll issued a command in failed state")
	}
}

func TestListView_IgnoresMessagesForOtherViews(t *testing.T) {
	api := &fakeAPI{items: []model.Item{{ID: "1", Status: "mine"}}}
	v := readyView(t, api)

	v, cmd := v.Update(fetchedMsg{view: v.id + 1, seq: 99, items: nil})
	if cmd != nil || len(v.items) != 1 {
		t.Fatalf("message for another view was applied: %+v", v.items)
	}
}
