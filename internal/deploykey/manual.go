package deploykey

import (
	"context"

	"convexpanel-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// SetManual adopts a user-entered deploy key. The key passes through the same
// validation predicate as every other source; a rejected entry leaves the
// previous state (including a previously valid key) untouched apart from Err.
func (r *Resolver) SetManual(ctx context.Context, key string, identity DeploymentIdentity) State {
	r.mu.Lock()
	r.current = identity

	if err := Validate(key, identity.Name); err != nil {
		r.state.Err = err.Error()
		r.state.NotConfigured = false
		st := r.state
		r.mu.Unlock()
		return st
	}

	r.state = State{Key: key, Source: SourceManual, BoundDeployment: identity.Name}
	st := r.state
	r.mu.Unlock()

	if r.store != nil {
		meta := store.KeyMetadata{
			Source:    string(SourceManual),
			ProjectID: identity.ProjectID,
			CreatedAt: r.now().UTC(),
		}
		if err := r.store.SaveDeploymentKey(ctx, identity.Name, key, meta); err != nil {
			log.WithError(err).Warnf("failed to persist manual key for %s", identity.Name)
		}
	}
	r.publishChanged(ctx, identity.Name, SourceManual)
	return st
}

// ClearManual drops the held key, its source and binding. Err is left alone;
// a user clearing a key should not wipe out an unrelated failure message.
func (r *Resolver) ClearManual(ctx context.Context, identity DeploymentIdentity) State {
	r.mu.Lock()
	r.state.Key = ""
	r.state.Source = ""
	r.state.BoundDeployment = ""
	st := r.state
	r.mu.Unlock()

	if r.store != nil && identity.Name != "" {
		if err := r.store.ClearDeploymentKey(ctx, identity.Name); err != nil {
			log.WithError(err).Warnf("failed to clear persisted key for %s", identity.Name)
		}
	}
	r.publishCleared(ctx, identity.Name)
	return st
}
