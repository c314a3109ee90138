package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"olistpipe/internal/common"
	"olistpipe/internal/config"
)

// CredentialEnv returns a complete set of Snowflake and Elementary variables
func CredentialEnv() map[string]string {
	env := map[string]string{}
	for _, prefix := range []string{config.PrimaryPrefix, config.QualityPrefix} {
		lower := strings.ToLower(prefix)
		env[prefix+"_ACCOUNT"] = "xy12345.eu-central-1"
		env[prefix+"_USER"] = lower + "_user"
		env[prefix+"_PASSWORD"] = lower + "_secret"
		env[prefix+"_ROLE"] = "TRANSFORMER"
		env[prefix+"_WAREHOUSE"] = "COMPUTE_WH"
		env[prefix+"_DATABASE"] = "OLIST"
		env[prefix+"_SCHEMA"] = lower + "_schema"
		env[prefix+"_ENV"] = "dev"
	}
	return env
}

// Project is a throwaway project root with scripts and data directories
type Project struct {
	Root string
	t    *testing.T
}

// NewProject creates a project root and points PROJECT_ROOT_DIR at it. Every
// variable in clear is unset for the duration of the test.
func NewProject(t *testing.T, clear ...string) *Project {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{config.ScriptsDirName, "data"} {
		if err := os.MkdirAll(filepath.Join(root, dir), common.DirPermissionNormal); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	t.Setenv(config.ProjectRootKey, root)
	for _, key := range clear {
		UnsetEnv(t, key)
	}
	return &Project{Root: root, t: t}
}

// Path joins rel onto the project root
func (p *Project) Path(rel ...string) string {
	return filepath.Join(append([]string{p.Root}, rel...)...)
}

// WriteFile writes content below the project root, creating directories
func (p *Project) WriteFile(rel, content string) string {
	p.t.Helper()
	path := p.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		p.t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), common.FilePermissionNormal); err != nil {
		p.t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// WriteDotEnv writes values as the project's .env file
func (p *Project) WriteDotEnv(values map[string]string) string {
	p.t.Helper()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, values[k])
	}
	return p.WriteFile(config.DotEnvFile, b.String())
}

// SetEnv sets every variable for the duration of the test
func SetEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for k, v := range values {
		t.Setenv(k, v)
	}
}

// UnsetEnv removes key for the duration of the test
func UnsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}
