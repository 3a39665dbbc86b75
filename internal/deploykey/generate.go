package deploykey

import (
	"context"
	"errors"
	"fmt"

	"convexpanel-go/internal/constants"
	"convexpanel-go/internal/store"

	log "github.com/sirupsen/logrus"
)

const genFailedMessage = "failed to create deploy key"

// Regenerate mints a fresh deploy key for the deployment. It is an explicit
// user action: a second call while one is in flight for the same deployment
// name is an idempotent no-op. All failures end up in the returned State,
// never as an error to the caller.
func (r *Resolver) Regenerate(ctx context.Context, identity DeploymentIdentity, accessToken string) State {
	name := identity.Name

	r.mu.Lock()
	if name == "" || accessToken == "" {
		r.state.Err = "select a deployment and sign in before creating a deploy key"
		r.state.NotConfigured = false
		st := r.state
		r.mu.Unlock()
		return st
	}
	if r.inflight[name] {
		st := r.state
		r.mu.Unlock()
		return st
	}
	r.inflight[name] = true
	r.current = identity
	r.accessToken = accessToken
	r.state.Loading = true
	r.state.Err = ""
	r.state.NotConfigured = false
	if r.state.Source == SourceManual {
		r.state.Source = ""
	}
	keyName := fmt.Sprintf("cp-%s-%d", identity.keyNamePart(), r.now().UnixMilli())
	r.mu.Unlock()

	key, genErr := r.createWithRetry(ctx, accessToken, name, keyName)

	fellBack := false
	if genErr != nil && r.tokens != nil {
		// Some account configurations accept the OAuth bearer token in
		// place of a dedicated deploy key. Recovery, not an error path.
		if fallback := r.tokens.GetValidAccessToken(); fallback != "" {
			log.WithField("deployment", name).Info("key generation failed, adopting cached access token")
			key = fallback
			genErr = nil
			fellBack = true
		}
	}

	r.mu.Lock()
	delete(r.inflight, name)

	// The identity moved on while we were generating: discard the stale
	// result without touching state that now belongs to another deployment.
	if r.current.Name != name {
		st := r.state
		r.mu.Unlock()
		log.WithField("deployment", name).Debug("discarding key generation result for abandoned deployment")
		return st
	}

	if genErr != nil {
		msg := genErr.Error()
		if msg == "" {
			msg = genFailedMessage
		}
		r.state.Loading = false
		r.state.Err = msg
		st := r.state
		r.mu.Unlock()
		log.WithField("deployment", name).Warnf("deploy key generation failed: %s", msg)
		return st
	}

	r.state = State{Key: key, Source: SourceGenerated, BoundDeployment: name}
	st := r.state
	r.mu.Unlock()

	// The fallback token expires on its own schedule; only real keys are
	// worth persisting.
	if !fellBack && r.store != nil {
		meta := store.KeyMetadata{
			Source:    string(SourceGenerated),
			KeyName:   keyName,
			ProjectID: identity.ProjectID,
			CreatedAt: r.now().UTC(),
		}
		if err := r.store.SaveDeploymentKey(ctx, name, key, meta); err != nil {
			log.WithError(err).Warnf("failed to persist deploy key for %s", name)
		}
	}
	r.publishChanged(ctx, name, SourceGenerated)
	return st
}

// createWithRetry performs up to KeyGenMaxAttempts creation calls with
// exponential backoff between attempts (1s, then 2s). Each attempt is bounded
// by its own timeout so a hung call cannot pin the loading state.
func (r *Resolver) createWithRetry(ctx context.Context, accessToken, deploymentName, keyName string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < constants.KeyGenMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := constants.KeyGenBaseDelay << (attempt - 1)
			if err := r.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, constants.KeyGenAttemptTimeout)
		key, err := r.creator.CreateDeployKey(attemptCtx, accessToken, deploymentName, keyName)
		cancel()
		if err == nil {
			return key, nil
		}
		lastErr = err
		log.WithError(err).Warnf("deploy key creation attempt %d/%d failed for %s",
			attempt+1, constants.KeyGenMaxAttempts, deploymentName)
	}
	if lastErr == nil {
		lastErr = errors.New(genFailedMessage)
	}
	return "", lastErr
}
