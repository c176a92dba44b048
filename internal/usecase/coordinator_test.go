package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medichat/internal/domain"
)

// --- coordinator test doubles ---

// fakeView is a thread-safe LiveView recording the rendered transcript.
type fakeView struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (v *fakeView) Append(msg domain.Message) {
	v.mu.Lock()
	v.msgs = append(v.msgs, msg)
	v.mu.Unlock()
}

func (v *fakeView) Replace(msgs []domain.Message) {
	v.mu.Lock()
	v.msgs = append([]domain.Message(nil), msgs...)
	v.mu.Unlock()
}

func (v *fakeView) Transcript() []domain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Message(nil), v.msgs...)
}

func (v *fakeView) contents() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.msgs))
	for i, m := range v.msgs {
		out[i] = m.Content
	}
	return out
}

// fakeChatBackend scripts Send/FetchHistory/ListSessions.
type fakeChatBackend struct {
	mu        sync.Mutex
	sendFn    func(ctx context.Context, sessionID, query string) (*domain.ChatResult, error)
	historyFn func(ctx context.Context, sessionID string) ([]domain.Message, error)
	sessions  []domain.Session
	listCalls int
}

func (b *fakeChatBackend) Send(ctx context.Context, sessionID, query string) (*domain.ChatResult, error) {
	b.mu.Lock()
	fn := b.sendFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, sessionID, query)
	}
	id := sessionID
	if id == "" {
		id = "S-new"
	}
	return &domain.ChatResult{SessionID: id, Message: domain.AssistantMessage("echo: " + query)}, nil
}

func (b *fakeChatBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	b.mu.Lock()
	fn := b.historyFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, sessionID)
	}
	return nil, domain.ErrNotFound
}

func (b *fakeChatBackend) ListSessions(context.Context) ([]domain.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	return b.sessions, nil
}

type fakeCred struct{ valid bool }

func (c fakeCred) Valid() bool { return c.valid }

func newTestCoordinator(backend *fakeChatBackend) (*Coordinator, *fakeView, *SessionCache) {
	view := &fakeView{}
	cache := NewSessionCache(nil, nil)
	c := NewCoordinator(CoordinatorDeps{
		View:      view,
		Backend:   backend,
		Cache:     cache,
		Sequencer: NewLoadSequencer(backend, cache, nil),
		Registry:  NewSessionRegistry(backend, nil),
	})
	return c, view, cache
}

// blockingSend returns a sendFn parked until release closes, plus the release.
func blockingSend(result *domain.ChatResult, failWith error) (func(context.Context, string, string) (*domain.ChatResult, error), chan struct{}) {
	release := make(chan struct{})
	return func(ctx context.Context, sessionID, query string) (*domain.ChatResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			if failWith != nil {
				return nil, failWith
			}
			return result, nil
		}
	}, release
}

// --- tests ---

func TestDecideRoute(t *testing.T) {
	cases := []struct {
		resolved, active string
		want             Route
	}{
		{"S1", "S1", RouteLive},
		{"", "", RouteLive}, // both unsaved
		{"S1", "S2", RouteCache},
		{"S1", "", RouteCache},
		{"", "S1", RouteCache},
	}
	for _, tc := range cases {
		if got := DecideRoute(tc.resolved, tc.active); got != tc.want {
			t.Errorf("DecideRoute(%q, %q) = %v, want %v", tc.resolved, tc.active, got, tc.want)
		}
	}
}

func TestSendRejectsEmptyQuery(t *testing.T) {
	c, view, _ := newTestCoordinator(&fakeChatBackend{})
	err := c.Send(context.Background(), "   ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(view.contents()) != 0 {
		t.Error("nothing should be rendered for an empty query")
	}
	if c.PendingCount() != 0 {
		t.Error("no bookkeeping for rejected sends")
	}
}

func TestSendExpiredCredential(t *testing.T) {
	backend := &fakeChatBackend{}
	backend.sendFn = func(context.Context, string, string) (*domain.ChatResult, error) {
		t.Error("backend must not be called without a valid credential")
		return nil, nil
	}
	view := &fakeView{}
	cache := NewSessionCache(nil, nil)
	c := NewCoordinator(CoordinatorDeps{
		View:      view,
		Backend:   backend,
		Cred:      fakeCred{valid: false},
		Cache:     cache,
		Sequencer: NewLoadSequencer(backend, cache, nil),
	})

	err := c.Send(context.Background(), "hello")
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	got := view.contents()
	if len(got) != 1 || !strings.Contains(got[0], "expired") {
		t.Errorf("view = %v, want only the session-expired notice", got)
	}
	if c.PendingCount() != 0 {
		t.Error("expired-credential sends must not enter the pending set")
	}
}

func TestSendResolvesLiveAndPendingAccounting(t *testing.T) {
	backend := &fakeChatBackend{}
	fn, release := blockingSend(&domain.ChatResult{
		SessionID: "S1",
		Message:   domain.AssistantMessage("answer"),
	}, nil)
	backend.sendFn = fn

	c, view, _ := newTestCoordinator(backend)
	c.Switch(context.Background(), "S1") // history miss leaves an empty view

	if err := c.Send(context.Background(), "question"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Pending is set exactly while a send is issued but unresolved.
	if c.PendingCount() != 1 || !c.IsPending(domain.KeyFor("S1")) {
		t.Fatalf("pending = %d, want 1 for S1", c.PendingCount())
	}

	close(release)
	c.Wait()

	if c.PendingCount() != 0 {
		t.Errorf("pending after resolve = %d, want 0", c.PendingCount())
	}
	got := view.contents()
	if len(got) != 2 || got[0] != "question" || got[1] != "answer" {
		t.Errorf("view = %v", got)
	}
}

func TestSessionIsolation(t *testing.T) {
	// A's in-flight answer must never render while B is active, and must
	// be retrievable by switching back to A.
	backend := &fakeChatBackend{}
	fn, release := blockingSend(&domain.ChatResult{
		SessionID: "A",
		Message:   domain.AssistantMessage("A answer"),
	}, nil)
	backend.sendFn = fn

	c, view, cache := newTestCoordinator(backend)
	cache.Save("B", transcript("B history"))
	c.Switch(context.Background(), "A")

	if err := c.Send(context.Background(), "A question"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.Switch(context.Background(), "B") // cached, synchronous

	close(release)
	c.Wait()

	for _, content := range view.contents() {
		if content == "A answer" {
			t.Fatal("A's answer rendered while B was active")
		}
	}

	cached, ok := cache.Load("A")
	if !ok || len(cached) != 2 || cached[1].Content != "A answer" {
		t.Fatalf("cache[A] = %v, %v; want [question, answer]", cached, ok)
	}
	// The user message saved at switch-away is not duplicated by the stash.
	if cached[0].Role != domain.RoleUser || cached[0].Content != "A question" {
		t.Errorf("cache[A][0] = %+v", cached[0])
	}

	c.Switch(context.Background(), "A")
	got := view.contents()
	if len(got) != 2 || got[1] != "A answer" {
		t.Errorf("view after switching back = %v", got)
	}
}

// gatedView parks Transcript until released so a test can hold a switch
// open mid-save and interleave a resolving send with it.
type gatedView struct {
	fakeView
	entered chan struct{}
	release chan struct{}
}

func (v *gatedView) Transcript() []domain.Message {
	v.entered <- struct{}{}
	<-v.release
	return v.fakeView.Transcript()
}

func TestResponseResolvingDuringSwitchSaveIsKept(t *testing.T) {
	// A's send resolves while the switch to B is saving A's transcript. The
	// resolved answer is cached, and the save must not clobber it with the
	// pre-answer snapshot.
	backend := &fakeChatBackend{}
	fn, releaseSend := blockingSend(&domain.ChatResult{
		SessionID: "A",
		Message:   domain.AssistantMessage("A answer"),
	}, nil)
	backend.sendFn = fn

	view := &gatedView{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	cache := NewSessionCache(nil, nil)
	c := NewCoordinator(CoordinatorDeps{
		View:      view,
		Backend:   backend,
		Cache:     cache,
		Sequencer: NewLoadSequencer(backend, cache, nil),
	})
	c.Switch(context.Background(), "A") // history miss leaves an empty view

	if err := c.Send(context.Background(), "A question"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	switched := make(chan struct{})
	go func() {
		defer close(switched)
		c.Switch(context.Background(), "B")
	}()

	<-view.entered // the switch is now snapshotting A's transcript
	close(releaseSend)
	time.Sleep(20 * time.Millisecond) // let the resolving send queue behind the switch
	close(view.release)

	<-switched
	c.Wait()

	cached, ok := cache.Load("A")
	if !ok || len(cached) == 0 || cached[len(cached)-1].Content != "A answer" {
		t.Fatalf("cache[A] = %v, %v; resolved answer was lost", cached, ok)
	}
}

func TestPendingCountAcrossKeys(t *testing.T) {
	backend := &fakeChatBackend{}
	fnA, releaseA := blockingSend(&domain.ChatResult{SessionID: "A", Message: domain.AssistantMessage("a")}, nil)
	fnB, releaseB := blockingSend(&domain.ChatResult{SessionID: "B", Message: domain.AssistantMessage("b")}, nil)
	backend.mu.Lock()
	backend.sendFn = func(ctx context.Context, sessionID, query string) (*domain.ChatResult, error) {
		if sessionID == "A" {
			return fnA(ctx, sessionID, query)
		}
		return fnB(ctx, sessionID, query)
	}
	backend.mu.Unlock()

	c, _, cache := newTestCoordinator(backend)
	cache.Save("A", transcript("a history"))
	cache.Save("B", transcript("b history"))

	c.Switch(context.Background(), "A")
	_ = c.Send(context.Background(), "to A")
	c.Switch(context.Background(), "B")
	_ = c.Send(context.Background(), "to B")

	if c.PendingCount() != 2 {
		t.Fatalf("pending = %d, want 2", c.PendingCount())
	}

	close(releaseA)
	waitUntil(t, func() bool { return c.PendingCount() == 1 })
	if c.IsPending(domain.KeyFor("A")) {
		t.Error("A still pending after resolve")
	}

	close(releaseB)
	c.Wait()
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", c.PendingCount())
	}
}

func TestUnsavedSendAdoptsAssignedID(t *testing.T) {
	backend := &fakeChatBackend{sessions: []domain.Session{{ID: "S-new", Title: "hello"}}}
	c, view, _ := newTestCoordinator(backend)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.Wait()

	if got := c.ActiveSession(); got != "S-new" {
		t.Errorf("active = %q, want adopted S-new", got)
	}
	got := view.contents()
	if len(got) != 2 || got[1] != "echo: hello" {
		t.Errorf("view = %v", got)
	}

	// Registry refreshed after the backend created the session.
	backend.mu.Lock()
	listCalls := backend.listCalls
	backend.mu.Unlock()
	if listCalls == 0 {
		t.Error("registry was not refreshed")
	}
}

func TestNewChatDuringUnsavedSend(t *testing.T) {
	// Send with no active session, then start a new chat while the send is
	// pending. When the backend assigns S1, the answer must land in
	// SessionCache["S1"], not in the new unsaved view.
	backend := &fakeChatBackend{}
	fn, release := blockingSend(&domain.ChatResult{
		SessionID: "S1",
		Message:   domain.AssistantMessage("late answer"),
	}, nil)
	backend.sendFn = fn

	c, view, cache := newTestCoordinator(backend)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.NewChat()

	close(release)
	c.Wait()

	if got := c.ActiveSession(); got != "" {
		t.Errorf("active = %q, want still unsaved", got)
	}
	if got := view.contents(); len(got) != 0 {
		t.Errorf("new chat view = %v, want empty", got)
	}
	cached, ok := cache.Load("S1")
	if !ok || len(cached) != 2 || cached[0].Content != "hello" || cached[1].Content != "late answer" {
		t.Errorf("cache[S1] = %v, %v", cached, ok)
	}
}

func TestFailureSurfacesOnlyInOriginSession(t *testing.T) {
	backend := &fakeChatBackend{}
	fn, release := blockingSend(nil, errors.New("connection reset"))
	backend.sendFn = fn

	c, view, cache := newTestCoordinator(backend)
	cache.Save("B", transcript("b history"))
	c.Switch(context.Background(), "A")

	_ = c.Send(context.Background(), "doomed")
	c.Switch(context.Background(), "B")

	close(release)
	c.Wait()

	for _, content := range view.contents() {
		if strings.Contains(content, "went wrong") {
			t.Fatal("failure surfaced in a different session")
		}
	}
	if c.PendingCount() != 0 {
		t.Error("pending not cleared on failure")
	}
}

func TestFailureSurfacesInOwnSession(t *testing.T) {
	backend := &fakeChatBackend{}
	backend.sendFn = func(context.Context, string, string) (*domain.ChatResult, error) {
		return nil, errors.New("connection reset")
	}
	c, view, _ := newTestCoordinator(backend)
	c.Switch(context.Background(), "A")

	_ = c.Send(context.Background(), "doomed")
	c.Wait()

	got := view.contents()
	if len(got) != 2 || !strings.Contains(got[1], "went wrong") {
		t.Errorf("view = %v, want query + failure notice", got)
	}
}

func TestCancelledSendIsSilent(t *testing.T) {
	backend := &fakeChatBackend{}
	started := make(chan struct{})
	backend.sendFn = func(ctx context.Context, _, _ string) (*domain.ChatResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	c, view, _ := newTestCoordinator(backend)
	c.Switch(context.Background(), "A")
	_ = c.Send(context.Background(), "never mind")
	<-started

	c.Cancel(domain.KeyFor("A"))
	c.Wait()

	got := view.contents()
	if len(got) != 1 || got[0] != "never mind" {
		t.Errorf("view = %v, want only the user message", got)
	}
	if c.PendingCount() != 0 {
		t.Error("pending not cleared on cancellation")
	}
}

func TestSwitchToActiveSessionIsNoOp(t *testing.T) {
	backend := &fakeChatBackend{}
	var calls atomic.Int32
	backend.historyFn = func(context.Context, string) ([]domain.Message, error) {
		calls.Add(1)
		return transcript("h"), nil
	}
	c, _, cache := newTestCoordinator(backend)

	c.Switch(context.Background(), "A")
	waitUntil(t, func() bool { return calls.Load() == 1 })
	// The fetched transcript is now cached; a same-session switch must not
	// reload, and not even consult the cache path.
	_, _ = cache.Load("A")
	c.Switch(context.Background(), "A")
	if calls.Load() != 1 {
		t.Errorf("redundant reload: %d history calls", calls.Load())
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestEmergencyNoticeRendersLive(t *testing.T) {
	backend := &fakeChatBackend{}
	view := &fakeView{}
	cache := NewSessionCache(nil, nil)
	locator := NewEmergencyLocator(
		staticGeo{at: domain.Coordinate{}},
		staticDir{facilities: []domain.Facility{{Name: "City Hospital", DistanceKm: 2}}},
		5, nil,
	)
	c := NewCoordinator(CoordinatorDeps{
		View:      view,
		Backend:   backend,
		Cache:     cache,
		Sequencer: NewLoadSequencer(backend, cache, nil),
		Emergency: locator,
	})
	c.Switch(context.Background(), "A")

	_ = c.Send(context.Background(), "severe chest pain, call an ambulance")
	c.Wait()

	found := false
	for _, content := range view.contents() {
		if strings.Contains(content, "City Hospital") {
			found = true
		}
	}
	if !found {
		t.Errorf("emergency notice missing from view: %v", view.contents())
	}
}
