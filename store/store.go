// Package store implements the trust artifact store: the client-held mirror
// of the remote artifact service. It keeps one ordered collection per
// artifact kind consistent with the server across concurrent
// create/verify/revoke/delete/share operations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantumtrust/go-trust-client/api"
	"github.com/quantumtrust/go-trust-client/artifact"
)

// Remote is the slice of the artifact service the store drives. *api.Client
// satisfies it.
type Remote interface {
	ListMine(ctx context.Context, kind artifact.Kind) ([]artifact.Artifact, error)
	Create(ctx context.Context, kind artifact.Kind, payload json.RawMessage) (*artifact.Artifact, error)
	Verify(ctx context.Context, kind artifact.Kind, id string, opts artifact.VerifyOptions) (*artifact.Artifact, error)
	Revoke(ctx context.Context, kind artifact.Kind, id, reason string) (*artifact.Artifact, error)
	Share(ctx context.Context, kind artifact.Kind, id, recipient string, permissions []string) (*artifact.Artifact, error)
	Delete(ctx context.Context, kind artifact.Kind, id string, flags artifact.DeleteFlags) error
}

// Store mirrors the caller's trust artifacts. It is safe for concurrent use;
// operations on different kinds are fully independent, and operations on the
// same kind settle atomically against the kind's collection.
//
// The store performs no retries and holds no ambient global state: construct
// it once with New and pass it by reference.
type Store struct {
	remote      Remote
	logger      *slog.Logger
	now         func() time.Time
	collections map[artifact.Kind]*collection
}

// Opt configures a Store.
type Opt func(*Store)

// WithLogger sets the logger for operation tracing.
func WithLogger(logger *slog.Logger) Opt {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock injects the time source used for expiry checks.
func WithClock(now func() time.Time) Opt {
	return func(s *Store) {
		s.now = now
	}
}

// WithStrictSequencing makes every collection track a per-id sequence number
// and discard completions older than one already applied. Without it the
// store keeps the plain last-writer-wins contract.
func WithStrictSequencing() Opt {
	return func(s *Store) {
		for _, c := range s.collections {
			c.strict = true
		}
	}
}

// New creates a store over the given remote service with one empty
// collection per artifact kind.
func New(remote Remote, opts ...Opt) *Store {
	s := &Store{
		remote:      remote,
		logger:      slog.Default(),
		now:         time.Now,
		collections: make(map[artifact.Kind]*collection),
	}
	for _, kind := range artifact.Kinds() {
		s.collections[kind] = newCollection(kind, false)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) collection(kind artifact.Kind) (*collection, error) {
	c, ok := s.collections[kind]
	if !ok {
		return nil, fmt.Errorf("invalid artifact kind: %s", kind)
	}
	return c, nil
}

// List fetches all artifacts of the kind owned by the caller. On success the
// whole collection is replaced and the kind-level error cleared; on failure
// the existing collection is untouched and the error recorded.
func (s *Store) List(ctx context.Context, kind artifact.Kind) ([]artifact.Artifact, error) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	c.begin()
	s.logger.DebugContext(ctx, "listing artifacts", "kind", kind)

	items, err := s.remote.ListMine(ctx, kind)
	if err != nil {
		c.settleErr(err)
		s.logger.WarnContext(ctx, "list failed", "kind", kind, "error", err)
		return nil, err
	}
	c.settleList(items)
	return c.snapshot(), nil
}

// ListAll refreshes every kind concurrently. Each kind's outcome lands in
// that kind's collection and error slot independently; the returned error is
// the first per-kind failure, if any.
func (s *Store) ListAll(ctx context.Context) error {
	var g errgroup.Group
	for _, kind := range artifact.Kinds() {
		g.Go(func() error {
			_, err := s.List(ctx, kind)
			return err
		})
	}
	return g.Wait()
}

// Create validates the payload against the kind's schema, submits it, and on
// success appends the confirmed artifact and selects it as current. The
// artifact is not visible until the server confirms.
func (s *Store) Create(ctx context.Context, kind artifact.Kind, payload json.RawMessage) (*artifact.Artifact, error) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	if err := artifact.ValidatePayload(kind, payload); err != nil {
		c.settleLocalErr(err)
		return nil, err
	}
	c.begin()
	s.logger.DebugContext(ctx, "creating artifact", "kind", kind)

	created, err := s.remote.Create(ctx, kind, payload)
	if err != nil {
		c.settleErr(err)
		s.logger.WarnContext(ctx, "create failed", "kind", kind, "error", err)
		return nil, err
	}
	if err := c.settleCreate(*created); err != nil {
		s.logger.WarnContext(ctx, "create response rejected", "kind", kind, "id", created.ID, "error", err)
		return nil, err
	}
	out := *created
	return &out, nil
}

// Verify asks the service to verify the artifact and applies the returned
// representation wherever the id appears, atomically. A verification
// failure records the error and leaves the artifact's last known status
// untouched: failure to verify is not evidence of invalidity.
func (s *Store) Verify(ctx context.Context, kind artifact.Kind, id string, opts artifact.VerifyOptions) (*artifact.Artifact, error) {
	return s.mutate(ctx, kind, id, "verify", func(ctx context.Context) (*artifact.Artifact, error) {
		return s.remote.Verify(ctx, kind, id, opts)
	})
}

// Revoke revokes the artifact with a reason and applies the returned
// representation wherever the id appears.
func (s *Store) Revoke(ctx context.Context, kind artifact.Kind, id, reason string) (*artifact.Artifact, error) {
	return s.mutate(ctx, kind, id, "revoke", func(ctx context.Context) (*artifact.Artifact, error) {
		return s.remote.Revoke(ctx, kind, id, reason)
	})
}

// Share grants a recipient access and applies the returned representation
// wherever the id appears.
func (s *Store) Share(ctx context.Context, kind artifact.Kind, id, recipient string, permissions []string) (*artifact.Artifact, error) {
	return s.mutate(ctx, kind, id, "share", func(ctx context.Context) (*artifact.Artifact, error) {
		return s.remote.Share(ctx, kind, id, recipient, permissions)
	})
}

// mutate runs one replace-everywhere operation: verify, revoke, and share
// all settle through the same rule. The remote call happens outside the
// collection lock; only begin and settle lock.
func (s *Store) mutate(ctx context.Context, kind artifact.Kind, id, op string, call func(context.Context) (*artifact.Artifact, error)) (*artifact.Artifact, error) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	seq, err := c.beginMutation(id)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "mutating artifact", "op", op, "kind", kind, "id", id)

	updated, err := call(ctx)
	if err != nil {
		c.settleErr(err)
		s.logger.WarnContext(ctx, "mutation failed", "op", op, "kind", kind, "id", id, "error", err)
		return nil, err
	}
	if !c.settleReplace(seq, *updated) {
		// The id left the collection (or a newer completion was already
		// applied) while this call was outstanding.
		s.logger.DebugContext(ctx, "mutation result not applied", "op", op, "kind", kind, "id", id)
	}
	out := *updated
	return &out, nil
}

// Delete removes the artifact. On success the id leaves the collection and,
// if it was the current selection, the selection is cleared in the same
// atomic update.
func (s *Store) Delete(ctx context.Context, kind artifact.Kind, id string, flags artifact.DeleteFlags) error {
	c, err := s.collection(kind)
	if err != nil {
		return err
	}
	seq := c.begin()
	s.logger.DebugContext(ctx, "deleting artifact", "kind", kind, "id", id)

	if err := s.remote.Delete(ctx, kind, id, flags); err != nil {
		c.settleErr(err)
		s.logger.WarnContext(ctx, "delete failed", "kind", kind, "id", id, "error", err)
		return err
	}
	c.settleDelete(seq, id)
	return nil
}

// SetCurrent points the kind's selection at an artifact already in the
// collection. Purely local; loading and error state are untouched.
func (s *Store) SetCurrent(kind artifact.Kind, id string) error {
	c, err := s.collection(kind)
	if err != nil {
		return err
	}
	return c.setCurrent(id)
}

// ClearCurrent clears the kind's selection.
func (s *Store) ClearCurrent(kind artifact.Kind) {
	if c, err := s.collection(kind); err == nil {
		c.clearCurrent()
	}
}

// ClearError resets the kind's error slot.
func (s *Store) ClearError(kind artifact.Kind) {
	if c, err := s.collection(kind); err == nil {
		c.clearErr()
	}
}

// Artifacts returns a copy of the kind's collection in insertion order.
func (s *Store) Artifacts(kind artifact.Kind) []artifact.Artifact {
	c, err := s.collection(kind)
	if err != nil {
		return nil
	}
	return c.snapshot()
}

// Get returns a copy of one artifact by id.
func (s *Store) Get(kind artifact.Kind, id string) (*artifact.Artifact, bool) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, false
	}
	a, ok := c.get(id)
	if !ok {
		return nil, false
	}
	return &a, true
}

// Current returns a copy of the kind's selected artifact, or nil when
// nothing is selected.
func (s *Store) Current(kind artifact.Kind) *artifact.Artifact {
	c, err := s.collection(kind)
	if err != nil {
		return nil
	}
	a, ok := c.currentArtifact()
	if !ok {
		return nil
	}
	return &a
}

// Loading reports whether any operation for the kind is outstanding.
func (s *Store) Loading(kind artifact.Kind) bool {
	c, err := s.collection(kind)
	if err != nil {
		return false
	}
	return c.loading()
}

// Err returns the kind's recorded error, if any.
func (s *Store) Err(kind artifact.Kind) error {
	c, err := s.collection(kind)
	if err != nil {
		return err
	}
	return c.err()
}

// Len returns the number of artifacts in the kind's collection.
func (s *Store) Len(kind artifact.Kind) int {
	c, err := s.collection(kind)
	if err != nil {
		return 0
	}
	return c.len()
}

// Expired reports whether the artifact carries an expiry in the past,
// against the store's injected clock. Expiry never mutates local state; the
// remote service stays authoritative.
func (s *Store) Expired(kind artifact.Kind, id string) bool {
	a, ok := s.Get(kind, id)
	return ok && a.Expired(s.now())
}

var _ Remote = (*api.Client)(nil)
