// Package session tracks the external signing identity (wallet) used to
// authorize trust artifact operations: the active address, chain, and
// balance, reconciled with asynchronous provider notifications the
// application does not control.
package session

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/quantumtrust/go-trust-client/api"
)

// State is the session's position in its connect lifecycle.
type State int

const (
	Uninitialized State = iota
	Disconnected
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Snapshot is the session state handed to watchers on every change.
type Snapshot struct {
	State       State
	Address     string
	Chain       *big.Int
	Balance     *big.Int
	HasProvider bool
}

// Listener receives a snapshot after each applied session change.
type Listener func(Snapshot)

// Session is the local view of the external signer. All state transitions go
// through the session's own handlers; reads are safe from any goroutine.
type Session struct {
	detect Detect
	logger *slog.Logger

	mu          sync.Mutex
	provider    Provider
	state       State
	address     string
	chain       *big.Int
	balance     *big.Int
	hasProvider bool
	lastErr     error

	// one provider subscription shared by all watchers
	watchers    map[int]Listener
	nextWatcher int
	unsubscribe func()

	// applied event/transition count, used by tests to prove that
	// duplicate registration cannot multiply state updates
	updates int
}

// Opt configures a Session.
type Opt func(*Session)

// WithLogger sets the logger for session tracing.
func WithLogger(logger *slog.Logger) Opt {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a session over the given provider detector. The session starts
// Uninitialized; call ProbeExistingConnection to adopt an already-authorized
// account without prompting.
func New(detect Detect, opts ...Opt) *Session {
	s := &Session{
		detect:   detect,
		logger:   slog.Default(),
		state:    Uninitialized,
		watchers: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProbeExistingConnection asks the environment, without prompting the user,
// whether an account is already authorized, and adopts it if so. A missing
// provider or probe failure leaves the session Disconnected with the error
// recorded; neither is fatal.
func (s *Session) ProbeExistingConnection(ctx context.Context) {
	provider, err := s.ensureProvider()
	if err != nil {
		s.commit(func() {
			s.state = Disconnected
			s.lastErr = err
		})
		return
	}

	accounts, err := provider.Accounts(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "connection probe failed", "error", err)
		s.commit(func() {
			s.state = Disconnected
			s.lastErr = err
		})
		return
	}
	if len(accounts) == 0 {
		s.commit(func() {
			s.state = Disconnected
		})
		return
	}

	chain, balance := s.derive(ctx, provider, accounts[0])
	s.commit(func() {
		s.state = Connected
		s.address = accounts[0]
		s.chain = chain
		s.balance = balance
	})
	s.logger.DebugContext(ctx, "adopted existing connection", "address", accounts[0])
}

// Connect interactively requests authorization. Every failure path resolves
// to a recorded error and a Disconnected session; the returned error is the
// same one recorded, for callers that want to branch immediately.
func (s *Session) Connect(ctx context.Context) error {
	provider, err := s.ensureProvider()
	if err != nil {
		s.commit(func() {
			s.state = Disconnected
			s.lastErr = err
		})
		return err
	}

	s.commit(func() {
		s.state = Connecting
	})

	accounts, err := provider.RequestAccounts(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "connect failed", "error", err)
		s.commit(func() {
			s.state = Disconnected
			s.lastErr = err
		})
		return err
	}
	if len(accounts) == 0 {
		err := api.NewUserRejectedError()
		s.commit(func() {
			s.state = Disconnected
			s.lastErr = err
		})
		return err
	}

	chain, balance := s.derive(ctx, provider, accounts[0])
	s.commit(func() {
		s.state = Connected
		s.address = accounts[0]
		s.chain = chain
		s.balance = balance
	})
	s.logger.DebugContext(ctx, "connected", "address", accounts[0], "chain", chain)
	return nil
}

// Disconnect ends the application's use of the session. Purely local: the
// provider's own authorization is outside application control and is not
// revoked.
func (s *Session) Disconnect() {
	s.commit(s.clearConnection)
}

// clearConnection resets identity and network together; address and chain
// must never go stale independently. Callers hold no lock; commit does.
func (s *Session) clearConnection() {
	s.state = Disconnected
	s.address = ""
	s.chain = nil
	s.balance = nil
}

// Watch registers a listener for session changes and returns its stop
// function. The provider subscription is reference counted: the first
// watcher subscribes once, later watchers share that subscription, and the
// last stop releases it. Re-watching never accumulates duplicate provider
// handlers.
func (s *Session) Watch(listener Listener) (stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = listener

	if s.unsubscribe == nil && s.provider != nil {
		s.unsubscribe = s.provider.Subscribe(s.handleEvent)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
			if len(s.watchers) == 0 && s.unsubscribe != nil {
				s.unsubscribe()
				s.unsubscribe = nil
			}
		})
	}
}

// handleEvent applies one provider notification.
func (s *Session) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case AccountsChanged:
		if len(ev.Accounts) == 0 {
			// Identical to an explicit Disconnect.
			s.commit(s.clearConnection)
			return
		}
		s.commit(func() {
			s.address = ev.Accounts[0]
		})
	case ChainChanged:
		s.handleChainChanged(ev)
	}
}

// handleChainChanged re-derives a fresh provider handle for the new chain
// and, when connected, refreshes chain and balance without user interaction.
func (s *Session) handleChainChanged(ev ChainChanged) {
	provider, err := s.detect()
	if err != nil {
		s.logger.Warn("provider re-detection failed after chain change", "error", err)
		s.commit(func() {
			s.provider = nil
			s.hasProvider = false
			s.lastErr = err
			s.clearConnection()
		})
		return
	}

	s.mu.Lock()
	s.provider = provider
	connected := s.state == Connected
	address := s.address
	resubscribe := s.unsubscribe != nil
	if resubscribe {
		s.unsubscribe()
		s.unsubscribe = provider.Subscribe(s.handleEvent)
	}
	s.mu.Unlock()

	if !connected {
		s.commit(func() {
			s.chain = ev.ChainID
		})
		return
	}

	ctx := context.Background()
	chain, balance := s.derive(ctx, provider, address)
	if chain == nil {
		chain = ev.ChainID
	}
	s.commit(func() {
		s.chain = chain
		s.balance = balance
	})
	s.logger.Debug("chain changed", "chain", chain)
}

// ensureProvider detects the provider on first use and caches the handle.
func (s *Session) ensureProvider() (Provider, error) {
	s.mu.Lock()
	if s.provider != nil {
		p := s.provider
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	provider, err := s.detect()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.hasProvider = false
		return nil, err
	}
	s.provider = provider
	s.hasProvider = true
	if len(s.watchers) > 0 && s.unsubscribe == nil {
		s.unsubscribe = provider.Subscribe(s.handleEvent)
	}
	return provider, nil
}

// derive fetches chain and balance for an address, tolerating failures:
// identity can be valid while network metadata is briefly unavailable.
func (s *Session) derive(ctx context.Context, provider Provider, address string) (*big.Int, *big.Int) {
	chain, err := provider.ChainID(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "failed to read chain id", "error", err)
		chain = nil
	}
	balance, err := provider.BalanceAt(ctx, address)
	if err != nil {
		s.logger.DebugContext(ctx, "failed to read balance", "error", err)
		balance = nil
	}
	return chain, balance
}

// commit applies one state transition atomically and notifies watchers with
// the resulting snapshot.
func (s *Session) commit(apply func()) {
	s.mu.Lock()
	apply()
	s.updates++
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.watchers))
	for _, l := range s.watchers {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:       s.state,
		Address:     s.address,
		Chain:       s.chain,
		Balance:     s.balance,
		HasProvider: s.hasProvider,
	}
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the active signing identity, or "" when disconnected.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Chain returns the active network id, or nil when disconnected.
func (s *Session) Chain() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

// Balance returns the last known balance of the active address, or nil.
func (s *Session) Balance() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// HasProvider reports whether a capable signer was found in the environment,
// regardless of whether the session is currently connected.
func (s *Session) HasProvider() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasProvider
}

// Err returns the session's recorded error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearErr resets the recorded error.
func (s *Session) ClearErr() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}
