package deploykey

import (
	"context"
	"fmt"

	"convexpanel-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// EnvFileStatus is the reconciliation result surfaced to the panel. The env
// file is never read into the active key automatically; adopting or writing
// it is always an explicit user action.
type EnvFileStatus struct {
	Path              string `json:"path"`
	HasKey            bool   `json:"has_key"`
	MatchesDeployment bool   `json:"matches_deployment"`
	InSync            bool   `json:"in_sync"`
}

// ReconcileWithEnvFile compares the env file's deploy key entry against the
// active deployment and the held key.
func (r *Resolver) ReconcileWithEnvFile(_ context.Context, path string, identity DeploymentIdentity) (EnvFileStatus, error) {
	status := EnvFileStatus{Path: path}

	fileKey, err := r.envFile.ReadDeployKey(path)
	if err != nil {
		return status, fmt.Errorf("read env file key: %w", err)
	}
	if fileKey == "" {
		return status, nil
	}

	status.HasKey = true
	status.MatchesDeployment = KeyMatchesDeployment(fileKey, identity.Name)

	r.mu.Lock()
	status.InSync = r.state.Key != "" && r.state.Key == fileKey
	r.mu.Unlock()
	return status, nil
}

// UseEnvFileKey adopts the env file's key as the active credential. The key
// still passes the full validation predicate; a rejected key leaves the
// previous state untouched apart from Err, same as a rejected manual entry.
func (r *Resolver) UseEnvFileKey(ctx context.Context, path string, identity DeploymentIdentity) State {
	fileKey, err := r.envFile.ReadDeployKey(path)
	if err != nil || fileKey == "" {
		r.mu.Lock()
		if err != nil {
			r.state.Err = fmt.Sprintf("read env file key: %v", err)
		} else {
			r.state.Err = "env file has no deploy key entry"
		}
		r.state.NotConfigured = false
		st := r.state
		r.mu.Unlock()
		return st
	}

	r.mu.Lock()
	r.current = identity
	if verr := Validate(fileKey, identity.Name); verr != nil {
		r.state.Err = verr.Error()
		r.state.NotConfigured = false
		st := r.state
		r.mu.Unlock()
		return st
	}
	r.state = State{Key: fileKey, Source: SourceEnvFile, BoundDeployment: identity.Name}
	st := r.state
	r.mu.Unlock()

	if r.store != nil {
		meta := store.KeyMetadata{
			Source:    string(SourceEnvFile),
			ProjectID: identity.ProjectID,
			CreatedAt: r.now().UTC(),
		}
		if err := r.store.SaveDeploymentKey(ctx, identity.Name, fileKey, meta); err != nil {
			log.WithError(err).Warnf("failed to persist env file key for %s", identity.Name)
		}
	}
	r.publishChanged(ctx, identity.Name, SourceEnvFile)
	return st
}

// WriteKeyToEnvFile pushes the held key into the project env file. Returns an
// error (for the HTTP handler, not for State) when no key is held.
func (r *Resolver) WriteKeyToEnvFile(_ context.Context, path string) error {
	r.mu.Lock()
	key := r.state.Key
	r.mu.Unlock()

	if key == "" {
		return fmt.Errorf("no deploy key held for the active deployment")
	}
	if err := r.envFile.WriteDeployKey(path, key); err != nil {
		return fmt.Errorf("write env file key: %w", err)
	}
	log.WithField("path", path).Info("deploy key written to env file")
	return nil
}
