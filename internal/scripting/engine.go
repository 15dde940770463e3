package scripting

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"minikv/internal/protocol"
	"minikv/internal/storage"
)

// ErrNoScript is returned by EvalSHA when the digest is not in the cache.
var ErrNoScript = errors.New("no matching script")

// Engine executes Lua scripts against the store. Each evaluation runs in a
// fresh Lua state; only the script cache is shared between connections.
type Engine struct {
	mu      sync.RWMutex
	scripts map[string]string // SHA1 hex -> script source
	store   *storage.Store
}

func NewEngine(store *storage.Store) *Engine {
	return &Engine{
		scripts: make(map[string]string),
		store:   store,
	}
}

// Load caches a script and returns its SHA1 digest.
func (e *Engine) Load(script string) string {
	digest := sha1Hex(script)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[digest] = script
	return digest
}

// Exists reports, per digest, whether a script is cached. Digests match
// case-insensitively.
func (e *Engine) Exists(digests []string) []bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]bool, len(digests))
	for i, digest := range digests {
		_, ok := e.scripts[strings.ToLower(digest)]
		results[i] = ok
	}
	return results
}

// Eval runs a script with KEYS and ARGV bound, caching it by digest as a
// side effect, and returns the script's result as a protocol element.
func (e *Engine) Eval(script string, keys, args []string) (protocol.Element, error) {
	e.mu.Lock()
	e.scripts[sha1Hex(script)] = script
	e.mu.Unlock()

	L := lua.NewState()
	defer L.Close()

	e.registerCallAPI(L)
	setGlobals(L, keys, args)

	if err := L.DoString(script); err != nil {
		return nil, fmt.Errorf("running script: %w", err)
	}

	return luaToElement(L.Get(-1)), nil
}

// EvalSHA runs a cached script by digest.
func (e *Engine) EvalSHA(digest string, keys, args []string) (protocol.Element, error) {
	e.mu.RLock()
	script, ok := e.scripts[strings.ToLower(digest)]
	e.mu.RUnlock()

	if !ok {
		return nil, ErrNoScript
	}
	return e.Eval(script, keys, args)
}

// registerCallAPI installs the redis.call bridge onto the store.
func (e *Engine) registerCallAPI(L *lua.LState) {
	redisTable := L.NewTable()

	redisTable.RawSetString("call", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		if n < 1 {
			L.RaiseError("redis.call requires at least one argument")
			return 0
		}

		name := L.CheckString(1)
		args := make([]string, 0, n-1)
		for i := 2; i <= n; i++ {
			args = append(args, lua.LVAsString(L.ToStringMeta(L.Get(i))))
		}

		result, err := e.call(name, args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(result)
		return 1
	}))

	L.SetGlobal("redis", redisTable)
}

// call executes one bridged command against the store and maps the result
// into a Lua value.
func (e *Engine) call(name string, args []string) (lua.LValue, error) {
	switch strings.ToUpper(name) {
	case "PING":
		return lua.LString("PONG"), nil

	case "ECHO":
		if len(args) < 1 {
			return nil, fmt.Errorf("wrong number of arguments for 'echo'")
		}
		return lua.LString(args[0]), nil

	case "GET":
		if len(args) < 1 {
			return nil, fmt.Errorf("wrong number of arguments for 'get'")
		}
		val, ok := e.store.Get(args[0])
		if !ok {
			return lua.LFalse, nil
		}
		return lua.LString(val), nil

	case "SET":
		if len(args) < 2 {
			return nil, fmt.Errorf("wrong number of arguments for 'set'")
		}
		e.store.Set(args[0], args[1], nil)
		return lua.LString("OK"), nil

	case "DEL":
		if len(args) < 1 {
			return nil, fmt.Errorf("wrong number of arguments for 'del'")
		}
		count := 0
		for _, key := range args {
			if e.store.Delete(key) {
				count++
			}
		}
		return lua.LNumber(count), nil

	case "EXISTS":
		if len(args) < 1 {
			return nil, fmt.Errorf("wrong number of arguments for 'exists'")
		}
		count := 0
		for _, key := range args {
			if e.store.Exists(key) {
				count++
			}
		}
		return lua.LNumber(count), nil

	default:
		return nil, fmt.Errorf("unknown command %q from script", name)
	}
}

// setGlobals binds KEYS and ARGV as 1-indexed Lua arrays.
func setGlobals(L *lua.LState, keys, args []string) {
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key))
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)
}

// luaToElement maps a script result onto the wire element model: strings
// become bulk strings, numbers integers, true 1, and nil or false the null
// bulk string. Tables map positionally to arrays.
func luaToElement(lv lua.LValue) protocol.Element {
	switch v := lv.(type) {
	case lua.LString:
		return protocol.BulkString(string(v))
	case lua.LNumber:
		return protocol.Integer(int64(v))
	case lua.LBool:
		if bool(v) {
			return protocol.Integer(1)
		}
		return protocol.NullBulkString{}
	case *lua.LTable:
		n := v.Len()
		elements := make(protocol.Array, 0, n)
		for i := 1; i <= n; i++ {
			elements = append(elements, luaToElement(v.RawGetInt(i)))
		}
		return elements
	default:
		return protocol.NullBulkString{}
	}
}

func sha1Hex(script string) string {
	sum := sha1.Sum([]byte(script))
	return hex.EncodeToString(sum[:])
}
