package syncer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/cache"
	"github.com/cuemby/burrow/pkg/credentials"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAppliance keeps one rule list per server ID in memory
type fakeAppliance struct {
	mu      sync.Mutex
	rules   map[string][]string
	failing map[string]error
	calls   []string
	sets    int

	// delay holds each UserRules call open so overlapping calls are seen
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeAppliance() *fakeAppliance {
	return &fakeAppliance{
		rules:   make(map[string][]string),
		failing: make(map[string]error),
	}
}

func (f *fakeAppliance) UserRules(_ context.Context, srv *types.Server) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, srv.ID)
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	delay := f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if err := f.failing[srv.ID]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.rules[srv.ID]...), nil
}

func (f *fakeAppliance) SetRules(_ context.Context, srv *types.Server, rules []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[srv.ID]; err != nil {
		return err
	}
	f.sets++
	f.rules[srv.ID] = append([]string(nil), rules...)
	return nil
}

func (f *fakeAppliance) fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[id] = err
}

func (f *fakeAppliance) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeAppliance) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type testEnv struct {
	engine    *Engine
	backend   *storage.BoltStore
	servers   *credentials.Store
	appliance *fakeAppliance
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	codec := security.NewCodecWithEntropy(&security.Entropy{
		InstanceID:   "test",
		DeviceSecret: bytes.Repeat([]byte{7}, security.DeviceSecretSize),
	})

	env := &testEnv{
		backend:   backend,
		servers:   credentials.New(backend, codec, nil),
		appliance: newFakeAppliance(),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	ruleCache := cache.NewWithClock(backend, func() time.Time { return env.now })
	env.engine = New(env.servers, env.appliance, ruleCache, backend, nil)
	return env
}

func (env *testEnv) addServer(t *testing.T, name string) string {
	t.Helper()
	srv, err := env.servers.Save(&types.Server{
		Name:     name,
		Host:     "http://10.0.0.1",
		Username: "admin",
		Password: "secret",
	})
	require.NoError(t, err)
	return srv.ID
}

func TestRefreshFetchesAndCaches(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.rules[id] = []string{"||ads.example^", "  ||ads.example^ ", "x", "! note"}

	result := env.engine.Refresh(context.Background(), id, false)
	require.True(t, result.Success, result.Error)
	assert.False(t, result.FromCache)
	assert.Empty(t, result.Warning)
	assert.Equal(t, []string{"||ads.example^", "! note"}, result.Data.Rules)
	assert.Equal(t, 2, result.Data.Count)

	entry, err := env.backend.GetRuleCache(id)
	require.NoError(t, err)
	assert.Equal(t, result.Data.Rules, entry.Rules)
}

func TestRefreshServesFreshCache(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.rules[id] = []string{"||ads.example^"}

	first := env.engine.Refresh(context.Background(), id, false)
	require.True(t, first.Success)

	env.now = env.now.Add(59 * time.Minute)
	second := env.engine.Refresh(context.Background(), id, false)
	require.True(t, second.Success)
	assert.True(t, second.FromCache)
	assert.Len(t, env.appliance.callLog(), 1)

	forced := env.engine.Refresh(context.Background(), id, true)
	require.True(t, forced.Success)
	assert.False(t, forced.FromCache)
	assert.Len(t, env.appliance.callLog(), 2)
}

func TestRefreshStaleFallback(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.rules[id] = []string{"||ads.example^"}

	require.True(t, env.engine.Refresh(context.Background(), id, false).Success)

	env.now = env.now.Add(3 * time.Hour)
	env.appliance.fail(id, errors.New("connection refused"))

	result := env.engine.Refresh(context.Background(), id, false)
	require.True(t, result.Success)
	assert.True(t, result.FromCache)
	assert.Equal(t, []string{"||ads.example^"}, result.Data.Rules)
	assert.Contains(t, result.Warning, "connection refused")
	assert.Empty(t, result.Error)
}

func TestRefreshFailureWithoutCache(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.fail(id, errors.New("HTTP 401 Unauthorized"))

	result := env.engine.Refresh(context.Background(), id, false)
	assert.False(t, result.Success)
	assert.Nil(t, result.Data)
	assert.Equal(t, "HTTP 401 Unauthorized", result.Error)
}

func TestRefreshUnknownServer(t *testing.T) {
	env := newTestEnv(t)

	result := env.engine.Refresh(context.Background(), "missing", false)
	assert.False(t, result.Success)
	assert.Equal(t, MsgServerNotFound, result.Error)
	assert.Empty(t, env.appliance.callLog())
}

func TestRefreshAllDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.addServer(t, "home")

	settings := types.DefaultSettings()
	settings.AutoSync = false
	require.NoError(t, env.backend.PutSettings(settings))

	result := env.engine.RefreshAll(context.Background(), false)
	assert.False(t, result.Success)
	assert.Equal(t, "Auto-sync is disabled", result.Error)
	assert.Empty(t, env.appliance.callLog())

	forced := env.engine.RefreshAll(context.Background(), true)
	assert.True(t, forced.Success)
	assert.Len(t, env.appliance.callLog(), 1)
}

func TestRefreshAllSequentialAndPartial(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		ids = append(ids, env.addServer(t, name))
	}
	env.appliance.fail(ids[1], errors.New("timeout"))
	env.appliance.delay = 10 * time.Millisecond

	servers, err := env.servers.List()
	require.NoError(t, err)
	var order []string
	for _, srv := range servers {
		order = append(order, srv.ID)
	}

	result := env.engine.RefreshAll(context.Background(), false)
	assert.True(t, result.Success)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[ids[0]].Success)
	assert.False(t, result.Results[ids[1]].Success)
	assert.True(t, result.Results[ids[2]].Success)

	assert.Equal(t, order, env.appliance.callLog(), "servers are refreshed in list order")
	assert.Equal(t, 1, env.appliance.peakInFlight(), "one appliance call at a time")
}

func TestRefreshAllEveryServerFails(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.fail(id, errors.New("down"))

	result := env.engine.RefreshAll(context.Background(), false)
	assert.False(t, result.Success)
	assert.Equal(t, "down", result.Results[id].Error)
}

func TestRefreshAllNoServers(t *testing.T) {
	env := newTestEnv(t)

	result := env.engine.RefreshAll(context.Background(), false)
	assert.False(t, result.Success)
	assert.Equal(t, MsgNoServers, result.Error)
}

func TestGetRulesPolicy(t *testing.T) {
	tests := []struct {
		name         string
		preferLatest bool
		wantCalls    int
		wantCache    bool
	}{
		{name: "cache first", preferLatest: false, wantCalls: 1, wantCache: true},
		{name: "prefer latest", preferLatest: true, wantCalls: 2, wantCache: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := env.addServer(t, "home")
			env.appliance.rules[id] = []string{"||ads.example^"}

			settings := types.DefaultSettings()
			settings.PreferLatest = tt.preferLatest
			require.NoError(t, env.backend.PutSettings(settings))

			require.True(t, env.engine.Refresh(context.Background(), id, true).Success)

			result := env.engine.GetRules(context.Background(), id)
			require.True(t, result.Success)
			assert.Equal(t, tt.wantCache, result.FromCache)
			assert.Len(t, env.appliance.callLog(), tt.wantCalls)
		})
	}
}

func TestGetRulesPreferLatestFallsBack(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.rules[id] = []string{"||ads.example^"}

	settings := types.DefaultSettings()
	settings.PreferLatest = true
	require.NoError(t, env.backend.PutSettings(settings))

	require.True(t, env.engine.GetRules(context.Background(), id).Success)
	env.appliance.fail(id, errors.New("unreachable"))

	result := env.engine.GetRules(context.Background(), id)
	require.True(t, result.Success)
	assert.True(t, result.FromCache)
	assert.NotEmpty(t, result.Warning)
}

func TestSetRulesThenGetRules(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")

	set := env.engine.SetRules(context.Background(), id, []string{"||ads.example^", "@@||cdn.example^"})
	require.True(t, set.Success, set.Error)

	got := env.engine.GetRules(context.Background(), id)
	require.True(t, got.Success)
	assert.Equal(t, []string{"||ads.example^", "@@||cdn.example^"}, got.Data.Rules)
	assert.True(t, got.FromCache)
	assert.Equal(t, []string{"||ads.example^", "@@||cdn.example^"}, env.appliance.rules[id])
}

func TestAddAndRemoveRule(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.rules[id] = []string{"||a.example^"}

	added := env.engine.AddRule(context.Background(), id, "||b.example^")
	require.True(t, added.Success, added.Error)
	assert.Equal(t, []string{"||a.example^", "||b.example^"}, added.Data.Rules)

	again := env.engine.AddRule(context.Background(), id, "||b.example^")
	require.True(t, again.Success)
	assert.Equal(t, 1, env.appliance.sets, "duplicate add must not write")

	removed := env.engine.RemoveRule(context.Background(), id, "||a.example^")
	require.True(t, removed.Success)
	assert.Equal(t, []string{"||b.example^"}, removed.Data.Rules)
	assert.Equal(t, []string{"||b.example^"}, env.appliance.rules[id])
}

func TestAddRuleNeverWritesFromStaleCache(t *testing.T) {
	env := newTestEnv(t)
	id := env.addServer(t, "home")
	env.appliance.rules[id] = []string{"||a.example^"}
	require.True(t, env.engine.Refresh(context.Background(), id, true).Success)

	env.appliance.fail(id, errors.New("offline"))
	result := env.engine.AddRule(context.Background(), id, "||b.example^")
	assert.False(t, result.Success)
	assert.Equal(t, "offline", result.Error)
	assert.Zero(t, env.appliance.sets)
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Start()
	env.engine.Stop()
	assert.NotPanics(t, env.engine.Stop)
}
