package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minikv/internal/protocol"
	"minikv/internal/storage"
)

func newEngine() (*Engine, *storage.Store) {
	store := storage.NewStore()
	return NewEngine(store), store
}

func TestEvalResults(t *testing.T) {
	engine, _ := newEngine()

	tests := []struct {
		name   string
		script string
		want   protocol.Element
	}{
		{"string", `return 'hello'`, protocol.BulkString("hello")},
		{"number", `return 1 + 1`, protocol.Integer(2)},
		{"true", `return true`, protocol.Integer(1)},
		{"false", `return false`, protocol.NullBulkString{}},
		{"nil", `return nil`, protocol.NullBulkString{}},
		{
			"table",
			`return {1, 'two', 3}`,
			protocol.Array{protocol.Integer(1), protocol.BulkString("two"), protocol.Integer(3)},
		},
		{"no return", `local x = 1`, protocol.NullBulkString{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Eval(tt.script, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalKeysAndArgv(t *testing.T) {
	engine, _ := newEngine()

	got, err := engine.Eval(`return KEYS[1] .. '=' .. ARGV[1]`, []string{"k"}, []string{"v"})
	require.NoError(t, err)
	assert.Equal(t, protocol.BulkString("k=v"), got)
}

func TestEvalRedisCall(t *testing.T) {
	engine, store := newEngine()

	got, err := engine.Eval(`return redis.call('SET', KEYS[1], ARGV[1])`, []string{"k"}, []string{"v"})
	require.NoError(t, err)
	assert.Equal(t, protocol.BulkString("OK"), got)

	val, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", val)

	got, err = engine.Eval(`return redis.call('GET', KEYS[1])`, []string{"k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.BulkString("v"), got)

	got, err = engine.Eval(`return redis.call('GET', 'missing')`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.NullBulkString{}, got)

	got, err = engine.Eval(`return redis.call('DEL', 'k', 'missing')`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.Integer(1), got)
}

func TestEvalRedisCallUnknownCommand(t *testing.T) {
	engine, _ := newEngine()

	_, err := engine.Eval(`return redis.call('SUBSCRIBE', 'chan')`, nil, nil)
	require.Error(t, err)
}

func TestEvalBrokenScript(t *testing.T) {
	engine, _ := newEngine()

	_, err := engine.Eval(`this is not lua`, nil, nil)
	require.Error(t, err)
}

func TestLoadAndEvalSHA(t *testing.T) {
	engine, _ := newEngine()

	digest := engine.Load(`return 'cached'`)
	require.Len(t, digest, 40)

	got, err := engine.EvalSHA(digest, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.BulkString("cached"), got)

	exists := engine.Exists([]string{digest, "0000000000000000000000000000000000000000"})
	assert.Equal(t, []bool{true, false}, exists)
}

func TestEvalSHAUnknownDigest(t *testing.T) {
	engine, _ := newEngine()

	_, err := engine.EvalSHA("deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", nil, nil)
	require.ErrorIs(t, err, ErrNoScript)
}

// Eval caches the script by digest as a side effect, so a later EVALSHA of
// the same source succeeds.
func TestEvalPopulatesCache(t *testing.T) {
	engine, _ := newEngine()

	_, err := engine.Eval(`return 7`, nil, nil)
	require.NoError(t, err)

	digest := sha1Hex(`return 7`)
	got, err := engine.EvalSHA(digest, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.Integer(7), got)
}
