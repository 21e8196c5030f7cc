package store

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/quantumtrust/go-trust-client/artifact"
)

// collection holds the local mirror of one artifact kind: the artifacts in
// insertion order, the current-selection pointer, the loading flag, and the
// last error. All mutation happens under the collection's own mutex, so
// kinds never contend with each other.
type collection struct {
	mu       sync.Mutex
	kind     artifact.Kind
	items    []artifact.Artifact
	current  string
	inflight int
	lastErr  error

	// strict-sequencing state: highest sequence applied per id, and the
	// next sequence to hand out. Unused unless the store enables it.
	strict  bool
	applied map[string]uint64
	nextSeq uint64
}

func newCollection(kind artifact.Kind, strict bool) *collection {
	return &collection{
		kind:    kind,
		strict:  strict,
		applied: make(map[string]uint64),
	}
}

// begin marks one operation in flight and hands out its sequence number.
func (c *collection) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight++
	c.nextSeq++
	return c.nextSeq
}

// beginMutation is begin plus the terminal-state check: once an entry
// records a terminal status, only delete may touch it again.
func (c *collection) beginMutation(id string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 && c.items[i].Status.Terminal() {
		err := fmt.Errorf("%s %s is %s and accepts no further mutation", c.kind, id, c.items[i].Status)
		c.lastErr = err
		return 0, err
	}
	c.inflight++
	c.nextSeq++
	return c.nextSeq, nil
}

// settleErr finishes a failed operation: the collection is untouched except
// for the loading flag and the error slot.
func (c *collection) settleErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	c.lastErr = err
}

// settleLocalErr records a failure that never reached the remote service,
// such as a payload rejected by schema validation.
func (c *collection) settleLocalErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

// settleList replaces the whole collection with the freshly listed
// artifacts and clears the kind-level error. The current pointer survives
// only if its id is still present.
func (c *collection) settleList(items []artifact.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	c.items = slices.Clone(items)
	c.lastErr = nil
	if c.current != "" && c.index(c.current) < 0 {
		c.current = ""
	}
}

// settleCreate appends the confirmed artifact and selects it. A response id
// already present in the collection is a protocol error and mutates
// nothing.
func (c *collection) settleCreate(a artifact.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.index(a.ID) >= 0 {
		err := fmt.Errorf("create returned duplicate %s id %s", c.kind, a.ID)
		c.lastErr = err
		return err
	}
	c.items = append(c.items, a)
	c.current = a.ID
	return nil
}

// settleReplace applies a verify/revoke/share result: the returned
// representation replaces the stored one wherever the id appears, in one
// atomic update. An id no longer in the collection (deleted while the call
// was outstanding) is left absent — the later-settling delete determined
// membership. Returns false when the completion was not applied.
func (c *collection) settleReplace(seq uint64, a artifact.Artifact) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.stale(a.ID, seq) {
		return false
	}
	i := c.index(a.ID)
	if i < 0 {
		return false
	}
	c.items[i] = a
	c.mark(a.ID, seq)
	return true
}

// settleDelete removes the id and clears the current pointer if it pointed
// at it, in the same atomic update.
func (c *collection) settleDelete(seq uint64, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.stale(id, seq) {
		return false
	}
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	if c.current == id {
		c.current = ""
	}
	c.mark(id, seq)
	return true
}

// stale reports whether a completion with the given sequence arrives after
// a newer one was already applied for the id. Always false outside strict
// mode: the default contract is last-writer-wins.
func (c *collection) stale(id string, seq uint64) bool {
	return c.strict && seq < c.applied[id]
}

func (c *collection) mark(id string, seq uint64) {
	if c.strict && seq > c.applied[id] {
		c.applied[id] = seq
	}
}

// index returns the position of id in the ordered items, or -1.
func (c *collection) index(id string) int {
	return slices.IndexFunc(c.items, func(a artifact.Artifact) bool {
		return a.ID == id
	})
}

// setCurrent points the selection at an existing id.
func (c *collection) setCurrent(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index(id) < 0 {
		return fmt.Errorf("%s %s is not in the collection", c.kind, id)
	}
	c.current = id
	return nil
}

func (c *collection) clearCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
}

func (c *collection) clearErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

// snapshot returns a copy of the items; callers may mutate the copy freely.
func (c *collection) snapshot() []artifact.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// get returns a copy of the artifact with the given id.
func (c *collection) get(id string) (artifact.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	return artifact.Artifact{}, false
}

// currentArtifact returns a copy of the selected artifact, if any. The
// selection is stored as an id and resolved against the collection on read,
// so the selected copy can never diverge from the collection entry.
func (c *collection) currentArtifact() (artifact.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" {
		return artifact.Artifact{}, false
	}
	if i := c.index(c.current); i >= 0 {
		return c.items[i], true
	}
	return artifact.Artifact{}, false
}

func (c *collection) loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight > 0
}

func (c *collection) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *collection) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
