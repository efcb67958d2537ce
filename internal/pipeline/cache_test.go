package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/pkg/codexec"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return NewRedisCache(client, time.Minute, zerolog.Nop()), server
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)

	score := 80.0
	stored := ActionResult{
		Data:  map[string]interface{}{"score": 80.0},
		Log:   []string{"2 of 2 passed"},
		Score: &score,
	}
	cache.Set(context.Background(), "action_result:test", stored)

	loaded, ok := cache.Get(context.Background(), "action_result:test")
	require.True(t, ok)
	require.Equal(t, stored.Log, loaded.Log)
	require.Equal(t, *stored.Score, *loaded.Score)
}

func TestRedisCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, ok := cache.Get(context.Background(), "action_result:absent")
	require.False(t, ok)
}

func TestCacheKeyChangesWithConfigAndAnswer(t *testing.T) {
	base := models.Action{ID: 1, Type: models.ActionTypeCode, Config: datatypes.JSON(`{"language":"python"}`)}
	rc := RunContext{Answer: []string{"print(1)"}}

	key := cacheKey(base, rc)

	changedConfig := base
	changedConfig.Config = datatypes.JSON(`{"language":"go"}`)
	require.NotEqual(t, key, cacheKey(changedConfig, rc))

	changedAnswer := RunContext{Answer: []string{"print(2)"}}
	require.NotEqual(t, key, cacheKey(base, changedAnswer))

	require.Equal(t, key, cacheKey(base, RunContext{Answer: []string{"print(1)"}}))
}

func TestRunnerUsesCacheAndForceOverrideBypassesIt(t *testing.T) {
	cache, _ := newTestCache(t)
	exec := &fakeExecClient{execResult: codexec.ExecResult{Stdout: "ok"}}
	runner := NewRunner(exec, testEvaluator(), cache, zerolog.Nop(), RunnerConfig{})

	cached := models.Action{ID: 7, Type: models.ActionTypeCode, Config: datatypes.JSON(`{"language":"python"}`)}
	rc := RunContext{Answer: []string{"print('x')"}}

	first := runner.Run(context.Background(), cached, rc)
	require.Equal(t, ExitNoError, first.Code)

	exec.execResult = codexec.ExecResult{ExitCode: 1}
	second := runner.Run(context.Background(), cached, rc)
	require.Equal(t, ExitNoError, second.Code, "expected cached result")

	cached.ForceOverrideCache = true
	third := runner.Run(context.Background(), cached, rc)
	require.Equal(t, ExitCodeError, third.Code, "expected fresh run")
}
