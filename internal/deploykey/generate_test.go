package deploykey

import (
	"context"
	"sync"
	"testing"
	"time"

	"convexpanel-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegenerateSuccessFirstAttempt(t *testing.T) {
	creator := &stubCreator{}
	fs := store.NewFileStore(t.TempDir())
	require.NoError(t, fs.Initialize(context.Background()))
	r, sleeper := newTestResolver(t, creator, func(o *Options) { o.Store = fs })
	identity := DeploymentIdentity{Name: "my-app-123", ProjectID: 42}

	st := r.Regenerate(context.Background(), identity, "tok")
	assert.Equal(t, "dev:my-app-123|minted", st.Key)
	assert.Equal(t, SourceGenerated, st.Source)
	assert.Equal(t, "my-app-123", st.BoundDeployment)
	assert.Empty(t, st.Err)
	assert.False(t, st.Loading)
	assert.Equal(t, 1, creator.callCount())
	assert.Empty(t, sleeper.delays)

	// Key names carry the project id and the mint timestamp.
	require.Len(t, creator.names, 1)
	assert.Equal(t, "cp-42-1700000000000", creator.names[0])

	// Minted keys survive the session.
	key, meta, err := fs.LoadDeploymentKey(context.Background(), "my-app-123")
	require.NoError(t, err)
	assert.Equal(t, st.Key, key)
	assert.Equal(t, string(SourceGenerated), meta.Source)
}

func TestRegenerateBackoffSchedule(t *testing.T) {
	creator := &stubCreator{errs: errScript(2, "transient")}
	r, sleeper := newTestResolver(t, creator, nil)

	st := r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "tok")
	assert.Equal(t, 3, creator.callCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.NotEmpty(t, st.Key, "third attempt succeeds after two failures")
}

func TestRegenerateExhaustsRetriesIntoErrState(t *testing.T) {
	creator := &stubCreator{errs: errScript(3, "dashboard unavailable")}
	r, sleeper := newTestResolver(t, creator, nil)

	st := r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "tok")
	assert.Equal(t, 3, creator.callCount(), "exactly three attempts, never more")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Empty(t, st.Key)
	assert.False(t, st.Loading)
	assert.Equal(t, "dashboard unavailable", st.Err)
	assert.False(t, st.NotConfigured)
}

func TestRegenerateFallsBackToAccessToken(t *testing.T) {
	creator := &stubCreator{errs: errScript(3, "key endpoint gone")}
	fs := store.NewFileStore(t.TempDir())
	require.NoError(t, fs.Initialize(context.Background()))
	r, _ := newTestResolver(t, creator, func(o *Options) {
		o.Store = fs
		o.Tokens = stubTokens{token: "oauth-bearer"}
	})

	st := r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "tok")
	assert.Equal(t, "oauth-bearer", st.Key)
	assert.Equal(t, SourceGenerated, st.Source)
	assert.Empty(t, st.Err)

	// The bearer token expires on its own schedule and is never persisted.
	_, _, err := fs.LoadDeploymentKey(context.Background(), "my-app-123")
	assert.True(t, store.IsNotFound(err))
}

func TestRegenerateNoFallbackWithoutCachedToken(t *testing.T) {
	creator := &stubCreator{errs: errScript(3, "boom")}
	r, _ := newTestResolver(t, creator, func(o *Options) {
		o.Tokens = stubTokens{token: ""}
	})

	st := r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "tok")
	assert.Empty(t, st.Key)
	assert.Equal(t, "boom", st.Err)
}

func TestRegenerateGuardsMissingInputs(t *testing.T) {
	creator := &stubCreator{}
	r, _ := newTestResolver(t, creator, nil)

	st := r.Regenerate(context.Background(), DeploymentIdentity{}, "tok")
	assert.NotEmpty(t, st.Err)

	st = r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "")
	assert.NotEmpty(t, st.Err)
	assert.Zero(t, creator.callCount())
}

func TestRegenerateSingleFlightPerDeployment(t *testing.T) {
	release := make(chan struct{})
	creator := &stubCreator{release: release}
	r, _ := newTestResolver(t, creator, nil)
	identity := DeploymentIdentity{Name: "my-app-123"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Regenerate(context.Background(), identity, "tok")
	}()

	// Wait for the first call to reach the creator, then fire a second
	// regeneration. It must return without a second network call.
	require.Eventually(t, func() bool { return creator.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	st := r.Regenerate(context.Background(), identity, "tok")
	assert.True(t, st.Loading)
	assert.Equal(t, 1, creator.callCount())

	close(release)
	wg.Wait()
	assert.Equal(t, 1, creator.callCount())
	assert.NotEmpty(t, r.Snapshot().Key)
}

func TestRegenerateDiscardsStaleResult(t *testing.T) {
	release := make(chan struct{})
	creator := &stubCreator{release: release}
	r, _ := newTestResolver(t, creator, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "tok")
	}()
	require.Eventually(t, func() bool { return creator.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	// The user switches deployments while generation is in flight.
	r.Resolve(context.Background(), DeploymentIdentity{Name: "other-app"}, "tok")

	close(release)
	wg.Wait()

	st := r.Snapshot()
	assert.NotEqual(t, "dev:my-app-123|minted", st.Key,
		"a result for an abandoned deployment must never be written back")
	assert.NotEqual(t, "my-app-123", st.BoundDeployment)
}

func TestRegeneratePublishesChangeEvent(t *testing.T) {
	creator := &stubCreator{}
	pub := &capturePublisher{}
	r, _ := newTestResolver(t, creator, func(o *Options) { o.Publisher = pub })

	r.Regenerate(context.Background(), DeploymentIdentity{Name: "my-app-123"}, "tok")
	require.Len(t, pub.topics, 1)
	assert.Equal(t, "deploykey.changed", pub.topics[0])
}

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ any, _ map[string]string) {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
}
