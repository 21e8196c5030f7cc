package session

import (
	"context"
	"math/big"
)

// Event is a push notification from the external signer provider.
type Event interface {
	isEvent()
}

// AccountsChanged reports the provider's authorized accounts after a change.
// An empty list means the provider disconnected the application.
type AccountsChanged struct {
	Accounts []string
}

func (AccountsChanged) isEvent() {}

// ChainChanged reports that the provider switched to a different network.
type ChainChanged struct {
	ChainID *big.Int
}

func (ChainChanged) isEvent() {}

// EventHandler receives provider events.
type EventHandler func(Event)

// Provider is the environment-supplied signer the session observes: a wallet
// the application does not control, whose accounts and chain can change at
// any time.
type Provider interface {
	// RequestAccounts interactively asks the user to authorize the
	// application. Returns api.ErrUserRejected (wrapped) when declined.
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the provider's active network.
	ChainID(ctx context.Context) (*big.Int, error)

	// BalanceAt returns the balance of the given address.
	BalanceAt(ctx context.Context, address string) (*big.Int, error)

	// Subscribe registers a handler for provider events and returns the
	// matching unsubscribe. Each Subscribe call registers one handler; the
	// session is responsible for not subscribing more than once.
	Subscribe(handler EventHandler) (unsubscribe func())
}

// Signer is the optional signing capability a provider may expose. The
// session itself never signs; callers that need to authorize an artifact
// operation assert for it.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
}

// Detect locates the environment's signer provider, returning a fresh handle
// each call. It returns an error wrapping api.ErrNoProvider when the
// environment has none. A chain change invalidates the previous handle, so
// the session re-invokes Detect after every ChainChanged event.
type Detect func() (Provider, error)
