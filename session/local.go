package session

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quantumtrust/go-trust-client/api"
)

// LocalProvider is an in-process Provider over a secp256k1 key, for callers
// that embed a key instead of relying on a browser wallet, and for tests
// that need a scriptable signer environment.
type LocalProvider struct {
	priv    *ecdsa.PrivateKey
	address string

	mu         sync.Mutex
	chainID    *big.Int
	balances   map[string]*big.Int
	authorized bool
	approve    bool

	handlers    map[int]EventHandler
	nextHandler int
}

// LocalOpt configures a LocalProvider.
type LocalOpt func(*LocalProvider)

// WithChainID sets the network the local provider reports.
func WithChainID(chainID *big.Int) LocalOpt {
	return func(p *LocalProvider) {
		p.chainID = chainID
	}
}

// WithBalance scripts the balance reported for an address.
func WithBalance(address string, balance *big.Int) LocalOpt {
	return func(p *LocalProvider) {
		p.balances[strings.ToLower(address)] = balance
	}
}

// WithApproval controls whether interactive authorization requests succeed.
// A local key holder normally approves its own application; tests turn this
// off to exercise the rejection path.
func WithApproval(approve bool) LocalOpt {
	return func(p *LocalProvider) {
		p.approve = approve
	}
}

// NewLocalProvider creates a provider over the given hex-encoded secp256k1
// private key.
func NewLocalProvider(privHex string, opts ...LocalOpt) (*LocalProvider, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	p := &LocalProvider{
		priv:     priv,
		address:  strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex()),
		chainID:  big.NewInt(1),
		balances: make(map[string]*big.Int),
		approve:  true,
		handlers: make(map[int]EventHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Address returns the provider's signing address.
func (p *LocalProvider) Address() string {
	return p.address
}

// RequestAccounts authorizes the application, or reports a user rejection
// when approval is scripted off.
func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.approve {
		return nil, api.NewUserRejectedError()
	}
	p.authorized = true
	return []string{p.address}, nil
}

// Accounts returns the authorized accounts without prompting.
func (p *LocalProvider) Accounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return nil, nil
	}
	return []string{p.address}, nil
}

// ChainID returns the provider's active network.
func (p *LocalProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

// BalanceAt returns the scripted balance for the address, defaulting to
// zero.
func (p *LocalProvider) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.balances[strings.ToLower(address)]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

// Subscribe registers a handler for provider events.
func (p *LocalProvider) Subscribe(handler EventHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextHandler
	p.nextHandler++
	p.handlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// HandlerCount returns the number of registered event handlers.
func (p *LocalProvider) HandlerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

// Emit delivers an event to every registered handler, the way a wallet
// pushes accountsChanged/chainChanged notifications.
func (p *LocalProvider) Emit(ev Event) {
	p.mu.Lock()
	if acc, ok := ev.(AccountsChanged); ok && len(acc.Accounts) == 0 {
		p.authorized = false
	}
	if ch, ok := ev.(ChainChanged); ok {
		p.chainID = ch.ChainID
	}
	handlers := make([]EventHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Sign signs the digest with the provider's key. Signature layout follows
// Ethereum convention: r (32 bytes) + s (32 bytes) + v (1 byte).
func (p *LocalProvider) Sign(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, p.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(signature))
	}
	return signature, nil
}

var (
	_ Provider = (*LocalProvider)(nil)
	_ Signer   = (*LocalProvider)(nil)
)
