package config

import (
	"os"
	"sort"
	"strings"
)

// Environment is an immutable snapshot of process environment variables.
// Components receive it explicitly instead of reading os.Getenv.
type Environment struct {
	values         map[string]string
	keyringService string
}

// FromOS snapshots the current process environment
func FromOS() Environment {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			values[kv[:i]] = kv[i+1:]
		}
	}
	return Environment{values: values}
}

// FromMap builds an environment from explicit values, mostly for tests
func FromMap(m map[string]string) Environment {
	values := make(map[string]string, len(m))
	for k, v := range m {
		values[k] = v
	}
	return Environment{values: values}
}

// WithKeyring returns a copy that falls back to the OS keyring for password keys.
func (e Environment) WithKeyring(service string) Environment {
	e.keyringService = service
	return e
}

// Lookup returns the raw value of key and whether it is set.
func (e Environment) Lookup(key string) (string, bool) {
	v, ok := e.values[key]
	if ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	if e.keyringService != "" && strings.HasSuffix(key, "_PASSWORD") {
		if secret, err := keyringGet(e.keyringService, key); err == nil && secret != "" {
			return secret, true
		}
	}
	return v, ok
}

// Get returns the trimmed value of key, or def when it is unset or blank.
func (e Environment) Get(key, def string) string {
	v, _ := e.Lookup(key)
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// Bool reports whether key holds a truthy value
func (e Environment) Bool(key string) bool {
	switch strings.ToLower(e.Get(key, "")) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// With returns a copy with key set to value
func (e Environment) With(key, value string) Environment {
	values := make(map[string]string, len(e.values)+1)
	for k, v := range e.values {
		values[k] = v
	}
	values[key] = value
	e.values = values
	return e
}

// Environ returns the snapshot as sorted KEY=VALUE pairs, suitable for exec.Cmd.Env.
func (e Environment) Environ() []string {
	out := make([]string, 0, len(e.values))
	for k, v := range e.values {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
