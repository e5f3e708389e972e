// Package coordinator applies mutation commands optimistically.
//
// Every command validates its input, computes the new entity from the
// cached one, stores it in the cache before any I/O, and then queues the
// remote write. The caller gets a *Pending that settles to Applied,
// FailedApplied or Rejected. A failed remote write leaves the optimistic
// value in place; the next full refresh reconciles it.
//
// Remote writes for the same key run in the order the commands were issued.
// They run detached from the caller's context, so cancelling a caller never
// aborts a write that was already issued.
package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/gateway"
	"github.com/cryptoshelf/shelfsync/internal/slot"
	"github.com/cryptoshelf/shelfsync/internal/validation"
)

// Remote is the write side of the gateway.
type Remote interface {
	SaveShelf(ctx context.Context, s domain.Shelf) (string, error)
	SaveShelfHeader(ctx context.Context, s domain.Shelf) (string, error)
	SaveSlot(ctx context.Context, shelfID string, sl domain.Slot) error
	SetFeatured(ctx context.Context, shelfID string, featured bool) error
	SetHidden(ctx context.Context, shelfID string, hidden bool) error

	SetReaction(ctx context.Context, shelfID, userID string, held domain.ReactionType) error

	SaveAccessory(ctx context.Context, a domain.Accessory) (domain.Accessory, error)
	DeleteAccessory(ctx context.Context, accessoryID string) error
	SaveTheme(ctx context.Context, t domain.Theme) (domain.Theme, error)
	DeleteTheme(ctx context.Context, themeID string) error
	SaveSkin(ctx context.Context, s domain.Skin) (domain.Skin, error)
	DeleteSkin(ctx context.Context, skinID string) error

	UpdateProfile(ctx context.Context, userID string, patch gateway.ProfilePatch) error
}

var _ Remote = (*gateway.Gateway)(nil)

// Options configures a Coordinator.
type Options struct {
	Logger    *slog.Logger
	Validator *validation.Validator
	// Rand drives Randomize. Defaults to a time-seeded source.
	Rand *rand.Rand
	// EmptyProbability is the chance Randomize leaves a slot empty.
	EmptyProbability float64
}

// Coordinator runs mutation commands against one session's cache.
type Coordinator struct {
	cache     *cache.Cache
	remote    Remote
	logger    *slog.Logger
	validator *validation.Validator
	pEmpty    float64

	rngMu sync.Mutex
	rng   *rand.Rand

	// reactMu keeps the two-collection reaction step atomic.
	reactMu sync.Mutex

	seq     *sequencer
	ids     *aliases
	pending *inflight
}

// New creates a coordinator writing to c and remote.
func New(c *cache.Cache, remote Remote, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Validator == nil {
		opts.Validator = validation.New()
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if opts.EmptyProbability <= 0 || opts.EmptyProbability > 1 {
		opts.EmptyProbability = slot.DefaultEmptyProbability
	}
	return &Coordinator{
		cache:     c,
		remote:    remote,
		logger:    opts.Logger,
		validator: opts.Validator,
		pEmpty:    opts.EmptyProbability,
		rng:       opts.Rand,
		seq:       newSequencer(),
		ids:       newAliases(),
		pending:   newInflight(),
	}
}

// Drain waits for every issued remote write to settle, or for ctx to end.
func (c *Coordinator) Drain(ctx context.Context) error {
	return c.seq.wait(ctx)
}

// InFlight returns the number of remote writes not yet settled.
func (c *Coordinator) InFlight() int {
	return c.seq.inflight()
}

// ResolveID maps a temporary id to the id the remote assigned to it. Other
// ids are returned unchanged.
func (c *Coordinator) ResolveID(entityID string) string {
	return c.ids.resolve(entityID)
}

// reject settles a command that had no effect. A nil err means the cache
// was closed.
func (c *Coordinator) reject(op string, err error) *Pending {
	if err == nil {
		err = domainerrors.ErrClosed
	}
	c.logger.Debug("command rejected", "op", op, "code", domainerrors.CodeOf(err), "error", err)
	return settled(Result{Status: Rejected, Err: err})
}

// submit queues write under key. The write runs detached from ctx's
// cancellation but keeps its values.
func (c *Coordinator) submit(ctx context.Context, key, op string, write func(ctx context.Context) (string, error)) *Pending {
	p := newPending()
	wctx := context.WithoutCancel(ctx)
	c.pending.begin(key)
	c.seq.run(key, func() {
		entityID, err := write(wctx)
		c.pending.end(key)
		if err != nil {
			c.logger.WarnContext(wctx, "remote write failed, keeping local change",
				"op", op, "key", key, "code", domainerrors.CodeOf(err), "error", err)
			p.resolve(Result{Status: FailedApplied, Err: err, ID: entityID})
			return
		}
		p.resolve(Result{Status: Applied, ID: entityID})
	})
	return p
}

// principal returns the current user or a rejection cause.
func (c *Coordinator) principal() (domain.Principal, error) {
	p, ok := c.cache.CurrentUser()
	if !ok || p.ID == "" {
		return domain.Principal{}, domainerrors.Validation("no current user")
	}
	return p, nil
}

func (c *Coordinator) requireAdmin() error {
	p, err := c.principal()
	if err != nil {
		return err
	}
	if !p.IsAdmin() {
		return domainerrors.Forbidden("admin role required")
	}
	return nil
}

// aliases maps temporary ids to the ids the remote assigned, in both
// directions. The reverse direction keeps sequencing keys stable after a
// re-key.
type aliases struct {
	mu     sync.RWMutex
	real   map[string]string
	origin map[string]string
}

func newAliases() *aliases {
	return &aliases{real: make(map[string]string), origin: make(map[string]string)}
}

func (a *aliases) set(tempID, realID string) {
	if tempID == realID {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.real[tempID] = realID
	if _, ok := a.origin[realID]; !ok {
		a.origin[realID] = tempID
	}
}

func (a *aliases) resolve(entityID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if r, ok := a.real[entityID]; ok {
		return r
	}
	return entityID
}

// key returns the sequencing key for entityID: the first id the entity was
// known by.
func (a *aliases) key(entityID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if o, ok := a.origin[entityID]; ok {
		return o
	}
	return entityID
}
