package deploykey

import (
	"context"
	"sync"
	"time"

	"convexpanel-go/internal/envfile"
	"convexpanel-go/internal/events"
	"convexpanel-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// KeyCreator mints deploy keys against the dashboard API.
type KeyCreator interface {
	CreateDeployKey(ctx context.Context, accessToken, deploymentName, keyName string) (string, error)
}

// TokenFallback supplies a cached, non-expired OAuth access token, or ""
// when none is available.
type TokenFallback interface {
	GetValidAccessToken() string
}

// EnvFileAccess reads and writes the project env file's deploy key entry.
type EnvFileAccess interface {
	ReadDeployKey(path string) (string, error)
	WriteDeployKey(path, key string) error
}

// Options configure how the resolver behaves.
type Options struct {
	Creator   KeyCreator
	Store     store.Store // optional; persists resolved keys across sessions
	Tokens    TokenFallback
	EnvFile   EnvFileAccess
	Publisher events.Publisher
	// Overridable for tests
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Resolver owns the deploy-key credential state for the panel session. It
// produces and maintains a valid key for the active deployment, preferring,
// in order: a held key that still validates, a manually supplied key, a key
// from the project env file, and finally a freshly generated key.
type Resolver struct {
	creator   KeyCreator
	store     store.Store
	tokens    TokenFallback
	envFile   EnvFileAccess
	publisher events.Publisher
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	state       State
	current     DeploymentIdentity
	accessToken string

	// Per-deployment generation lock; at most one in-flight generation
	// per deployment name.
	inflight map[string]bool

	// Resolve coalescing: a resolve requested while one is pending for the
	// same deployment runs once more after completion, never interleaved.
	resolving map[string]bool
	pending   map[string]resolveArgs
}

type resolveArgs struct {
	identity    DeploymentIdentity
	accessToken string
}

// defaultEnvFile adapts the envfile package to EnvFileAccess.
type defaultEnvFile struct{}

func (defaultEnvFile) ReadDeployKey(path string) (string, error) { return envfile.ReadDeployKey(path) }
func (defaultEnvFile) WriteDeployKey(path, key string) error     { return envfile.WriteDeployKey(path, key) }

// NewResolver creates a resolver. Only Creator is required.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		creator:   opts.Creator,
		store:     opts.Store,
		tokens:    opts.Tokens,
		envFile:   opts.EnvFile,
		publisher: opts.Publisher,
		now:       opts.Now,
		sleep:     opts.Sleep,
		inflight:  make(map[string]bool),
		resolving: make(map[string]bool),
		pending:   make(map[string]resolveArgs),
	}
	if r.envFile == nil {
		r.envFile = defaultEnvFile{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sleep == nil {
		r.sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return r
}

// Snapshot returns a copy of the current credential state.
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Resolve re-derives credential state for the given identity and access
// token. Callers invoke it whenever either changes. It never fails; every
// problem is translated into the returned State.
func (r *Resolver) Resolve(ctx context.Context, identity DeploymentIdentity, accessToken string) State {
	name := identity.Name

	r.mu.Lock()
	if name != "" && r.resolving[name] {
		r.pending[name] = resolveArgs{identity: identity, accessToken: accessToken}
		st := r.state
		r.mu.Unlock()
		return st
	}
	r.resolving[name] = true
	r.mu.Unlock()

	st := r.resolveOnce(ctx, identity, accessToken)
	for {
		r.mu.Lock()
		args, ok := r.pending[name]
		if !ok {
			delete(r.resolving, name)
			r.mu.Unlock()
			return st
		}
		delete(r.pending, name)
		r.mu.Unlock()
		st = r.resolveOnce(ctx, args.identity, args.accessToken)
	}
}

func (r *Resolver) resolveOnce(ctx context.Context, identity DeploymentIdentity, accessToken string) State {
	r.mu.Lock()
	r.current = identity
	r.accessToken = accessToken

	// No deployment or no token: unauthenticated terminal state.
	if identity.Name == "" || accessToken == "" {
		r.state = State{}
		st := r.state
		r.mu.Unlock()
		return st
	}

	if r.state.Key != "" {
		// Steady state: the held key still belongs to this deployment.
		if r.state.hasValidBinding(identity.Name) {
			st := r.state
			r.mu.Unlock()
			return st
		}
		// Stale or malformed key. Clear it and report; regeneration is
		// left to an explicit user action so we never silently mint keys.
		reason := ErrKeyMismatch
		if err := Validate(r.state.Key, identity.Name); err != nil {
			reason = err.Error()
		}
		r.state = State{Err: reason}
		st := r.state
		r.mu.Unlock()
		log.WithField("deployment", identity.Name).Info("held deploy key invalidated")
		return st
	}

	canAdoptPersisted := r.state.Err == ""
	r.mu.Unlock()

	// First touch of this deployment: adopt a persisted key if one survives
	// validation. Anything else falls through to the informational state.
	if canAdoptPersisted && r.store != nil {
		if st, adopted := r.adoptPersistedKey(ctx, identity); adopted {
			return st
		}
	}

	r.mu.Lock()
	if r.current.Name == identity.Name && r.state.Key == "" && r.state.Err == "" {
		r.state = State{Err: noKeyMessage, NotConfigured: true}
	}
	st := r.state
	r.mu.Unlock()
	return st
}

func (r *Resolver) adoptPersistedKey(ctx context.Context, identity DeploymentIdentity) (State, bool) {
	key, meta, err := r.store.LoadDeploymentKey(ctx, identity.Name)
	if err != nil {
		if !store.IsNotFound(err) {
			log.WithError(err).Warnf("failed to load persisted key for %s", identity.Name)
		}
		return State{}, false
	}
	if Validate(key, identity.Name) != nil {
		log.WithField("deployment", identity.Name).Warn("persisted deploy key no longer validates, ignoring")
		return State{}, false
	}

	source := Source(meta.Source)
	if source == "" {
		source = SourceGenerated
	}

	r.mu.Lock()
	if r.current.Name != identity.Name || r.state.Key != "" {
		st := r.state
		r.mu.Unlock()
		return st, true
	}
	r.state = State{Key: key, Source: source, BoundDeployment: identity.Name}
	st := r.state
	r.mu.Unlock()

	if err := r.store.MarkKeyUsed(ctx, identity.Name, r.now()); err != nil && !store.IsNotFound(err) {
		log.WithError(err).Debug("failed to record key usage")
	}
	r.publishChanged(ctx, identity.Name, source)
	return st, true
}

func (r *Resolver) publishChanged(ctx context.Context, deployment string, source Source) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(ctx, events.TopicDeployKeyChanged, map[string]any{
		"deployment": deployment,
		"source":     string(source),
	}, nil)
}

func (r *Resolver) publishCleared(ctx context.Context, deployment string) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(ctx, events.TopicDeployKeyCleared, map[string]any{
		"deployment": deployment,
	}, nil)
}
