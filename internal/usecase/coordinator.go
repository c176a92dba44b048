// Package usecase contains the session-scoped conversation coordination
// core: the request coordinator, session cache, load sequencer, session
// registry and the emergency proximity ranking.
package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"medichat/internal/domain"
)

const sessionExpiredNotice = "Your session has expired. Please sign in again."

const transportFailureNotice = "Sorry, something went wrong while answering. Please try again."

// sendToken identifies one outstanding send. Stored by pointer so the
// finally path can tell "my token is still the registered one" apart from
// "a newer send replaced it".
type sendToken struct {
	cancel context.CancelFunc
}

// Coordinator owns the per-session concurrency bookkeeping for sends: which
// RequestKeys have a request in flight, where each eventually-arriving
// response goes (live view or session cache), and the switch/new-chat
// transitions between sessions.
//
// Requests survive session switches: the user must not lose an answer just
// because they looked at another conversation, but the view must never show
// a response under the wrong session. Routing is therefore decided at
// resolution time against the then-current active session.
type Coordinator struct {
	mu       sync.Mutex
	activeID string // session currently on screen; "" = unsaved new chat
	pending  map[domain.RequestKey]struct{}
	active   map[domain.RequestKey]*sendToken
	wg       sync.WaitGroup

	// unsavedEpoch distinguishes successive unsaved chats. Both are "" in
	// activeID terms, but a send issued from one must not adopt its
	// backend-assigned id, or render, into the next.
	unsavedEpoch uint64

	view       LiveView
	backend    domain.ChatBackend
	cred       domain.CredentialSource // nil = no credential gate
	cache      *SessionCache
	seq        *LoadSequencer
	registry   *SessionRegistry
	classifier *ErrorClassifier
	emergency  *EmergencyLocator // nil = emergency lookup disabled
	logger     *slog.Logger
	entropy    *ulid.MonotonicEntropy
}

// CoordinatorDeps are the collaborators injected into a Coordinator.
type CoordinatorDeps struct {
	View      LiveView
	Backend   domain.ChatBackend
	Cred      domain.CredentialSource
	Cache     *SessionCache
	Sequencer *LoadSequencer
	Registry  *SessionRegistry
	Emergency *EmergencyLocator
	Logger    *slog.Logger
}

// NewCoordinator creates a coordinator. View, Backend, Cache and Sequencer
// are required; the rest may be nil.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		pending:    make(map[domain.RequestKey]struct{}),
		active:     make(map[domain.RequestKey]*sendToken),
		view:       deps.View,
		backend:    deps.Backend,
		cred:       deps.Cred,
		cache:      deps.Cache,
		seq:        deps.Sequencer,
		registry:   deps.Registry,
		classifier: NewErrorClassifier(),
		emergency:  deps.Emergency,
		logger:     logger,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// ActiveSession returns the id of the session on screen ("" = unsaved).
func (c *Coordinator) ActiveSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// PendingCount returns the number of RequestKeys with a send in flight.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsPending reports whether key has a send in flight.
func (c *Coordinator) IsPending(key domain.RequestKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Send submits query for the active session and returns immediately; the
// response is routed when it resolves. The user message is appended to the
// live view before the request is issued.
//
// An empty query is rejected synchronously. A missing or expired credential
// surfaces the session-expired notice without entering the pending/registry
// bookkeeping.
func (c *Coordinator) Send(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.NewDomainError("coordinator.Send", domain.ErrInvalidInput, "empty query")
	}
	if c.cred != nil && !c.cred.Valid() {
		c.view.Append(domain.AssistantMessage(sessionExpiredNotice))
		return domain.NewDomainError("coordinator.Send", domain.ErrSessionExpired, "")
	}

	reqID := ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
	userMsg := domain.UserMessage(query)

	c.mu.Lock()
	sentFrom := c.activeID
	epoch := c.unsavedEpoch
	key := domain.KeyFor(sentFrom)
	token := &sendToken{}
	sendCtx, cancel := context.WithCancel(ctx)
	token.cancel = cancel
	c.active[key] = token // most recent token wins; the older send still runs
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	c.view.Append(userMsg)

	c.logger.Debug("send issued", "request_id", reqID, "key", string(key))

	if c.emergency != nil && c.emergency.Detect(query) {
		c.spawnEmergencyLookup(sentFrom)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.backend.Send(sendCtx, sentFrom, query)
		c.resolveSend(key, sentFrom, epoch, token, userMsg, res, err, reqID)
	}()
	return nil
}

// resolveSend runs when a send's backend call returns, in the sender's
// goroutine. All routing decisions read the active session as it is NOW.
func (c *Coordinator) resolveSend(key domain.RequestKey, sentFrom string, epoch uint64, token *sendToken, userMsg domain.Message, res *domain.ChatResult, err error, reqID string) {
	defer func() {
		// The finally path: exactly one removal per send, and the registry
		// entry is cleared only if it is still this send's token.
		c.mu.Lock()
		delete(c.pending, key)
		if c.active[key] == token {
			delete(c.active, key)
		}
		c.mu.Unlock()
		token.cancel()
	}()

	if err != nil {
		c.resolveFailure(key, err, reqID)
		return
	}

	resolvedID := res.SessionID

	c.mu.Lock()
	if sentFrom == "" && resolvedID != "" && c.activeID == "" && c.unsavedEpoch == epoch {
		// The backend just assigned an id to the unsaved chat and the view
		// has not navigated away from it: adopt the id.
		c.activeID = resolvedID
	}
	route := DecideRoute(resolvedID, c.activeID)
	c.mu.Unlock()

	if sentFrom == "" && resolvedID != "" {
		c.refreshRegistry()
	}

	switch route {
	case RouteLive:
		c.view.Append(res.Message)
	case RouteCache:
		c.stash(resolvedID, userMsg, res.Message)
	}
	c.logger.Debug("send resolved", "request_id", reqID, "session_id", resolvedID, "cached", route == RouteCache)
}

func (c *Coordinator) resolveFailure(key domain.RequestKey, err error, reqID string) {
	switch c.classifier.Classify(err) {
	case ErrorKindCancelled:
		// Expected; no message, no error surfaced.
		c.logger.Debug("send cancelled", "request_id", reqID)
	case ErrorKindAuth:
		if c.viewingKey(key) {
			c.view.Append(domain.AssistantMessage(sessionExpiredNotice))
		}
		c.logger.Warn("send auth failure", "request_id", reqID, "error", err)
	default:
		// The user only sees the failure inside the session that asked.
		if c.viewingKey(key) {
			c.view.Append(domain.AssistantMessage(transportFailureNotice))
		} else {
			c.logger.Debug("send failure for backgrounded session dropped", "request_id", reqID)
		}
		c.logger.Warn("send failed", "request_id", reqID, "error", err)
	}
}

func (c *Coordinator) viewingKey(key domain.RequestKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.KeyFor(c.activeID) == key
}

// stash writes a resolved exchange into the cache for a session that is not
// on screen. The user message is included unless the entry already ends
// with it (it does when the user switched away after the view was saved).
func (c *Coordinator) stash(sessionID string, userMsg, assistantMsg domain.Message) {
	if sessionID == "" {
		c.logger.Debug("response for unsaved session dropped, no cache identity")
		return
	}
	if tail, ok := c.cache.Tail(sessionID); ok && tail.Role == domain.RoleUser && tail.Raw == userMsg.Raw {
		c.cache.Append(sessionID, assistantMsg)
		return
	}
	c.cache.Append(sessionID, userMsg, assistantMsg)
}

// Cancel aborts the outstanding send for key, if any. Kept internal to
// switch bookkeeping; there is deliberately no user-facing stop action, and
// navigating away from a session does not cancel its send.
func (c *Coordinator) Cancel(key domain.RequestKey) {
	c.mu.Lock()
	token := c.active[key]
	c.mu.Unlock()
	if token != nil {
		token.cancel()
	}
}

// Switch makes sessionID the active session. The outgoing transcript is
// saved to the cache before the view changes; the incoming one is served
// from cache when possible and loaded through the sequencer otherwise.
// Switching to the already-active saved session is a no-op; switching to ""
// starts a new chat (see NewChat).
func (c *Coordinator) Switch(ctx context.Context, sessionID string) {
	if sessionID == "" {
		c.NewChat()
		return
	}

	c.mu.Lock()
	if sessionID == c.activeID {
		c.mu.Unlock()
		return
	}
	c.saveOutgoing(c.activeID)
	c.activeID = sessionID
	c.mu.Unlock()

	c.view.Replace(nil)

	c.seq.Load(ctx, sessionID, func(msgs []domain.Message) {
		// Re-check after the suspension: only show the transcript if this
		// session is still the one the UI intends to show.
		c.mu.Lock()
		still := c.activeID == sessionID
		c.mu.Unlock()
		if still {
			c.view.Replace(msgs)
		}
	})
}

// NewChat switches to a fresh unsaved session. Never a no-op: starting a new
// chat while already on an unsaved one detaches any pending unsaved send, so
// its response lands in the cache under its assigned id rather than in the
// new view.
func (c *Coordinator) NewChat() {
	c.mu.Lock()
	c.saveOutgoing(c.activeID)
	c.activeID = ""
	c.unsavedEpoch++
	c.mu.Unlock()

	c.view.Replace(nil)
}

// saveOutgoing writes the departing session's transcript to the cache.
// Callers hold c.mu so the write is atomic with the active-session change:
// routing decisions also run under c.mu, so a response that resolves for
// the departing session after the change is cached after this save, never
// overwritten by it. The save also runs before the live view is cleared,
// or the transcript would be lost.
func (c *Coordinator) saveOutgoing(outgoing string) {
	if outgoing != "" {
		c.cache.Save(outgoing, c.view.Transcript())
	}
}

// Wait blocks until every in-flight send has resolved. Used on shutdown and
// in tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) refreshRegistry() {
	if c.registry == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.registry.Refresh(ctx); err != nil {
			c.logger.Warn("registry refresh after session creation failed", "error", err)
		}
	}()
}

// spawnEmergencyLookup runs the proximity flow concurrently with the send.
// Its notice is routed like any response: live if the originating session is
// still viewed, cached otherwise. Failures never disturb the chat flow.
func (c *Coordinator) spawnEmergencyLookup(sentFrom string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := c.emergency.Notice(ctx)
		if err != nil {
			c.logger.Warn("emergency lookup failed", "error", err)
			return
		}

		c.mu.Lock()
		live := domain.KeyFor(c.activeID) == domain.KeyFor(sentFrom)
		c.mu.Unlock()

		if live {
			c.view.Append(msg)
		} else if sentFrom != "" {
			c.cache.Append(sentFrom, msg)
		}
	}()
}
