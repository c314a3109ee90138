package config

import (
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"

	"olistpipe/internal/common"
	"olistpipe/internal/observability"
	"olistpipe/pkg/errors"
)

// Inference records how the project root was determined
type Inference string

const (
	RootFromEnv           Inference = "env"
	RootFromScriptsParent Inference = "scripts-parent"
	RootFromWorkDir       Inference = "cwd"
)

const (
	// ProjectRootKey overrides project root inference when set
	ProjectRootKey = "PROJECT_ROOT_DIR"
	// ScriptsDirName is the directory whose parent is taken as project root
	ScriptsDirName = "scripts"
	// DotEnvFile is loaded from the project root when present
	DotEnvFile = ".env"
)

// ResolveProjectRoot picks the project root: PROJECT_ROOT_DIR verbatim, else the
// parent of a "scripts" directory holding the executable, else cwd.
func ResolveProjectRoot(env Environment, executablePath, cwd string) (string, Inference) {
	if root := env.Get(ProjectRootKey, ""); root != "" {
		return root, RootFromEnv
	}

	if executablePath != "" {
		dir := filepath.Dir(filepath.Clean(executablePath))
		if filepath.Base(dir) == ScriptsDirName {
			return filepath.Dir(dir), RootFromScriptsParent
		}
	}

	return cwd, RootFromWorkDir
}

// LoadDotEnv loads <root>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(root string) (bool, error) {
	path := filepath.Join(root, DotEnvFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.FileError(errors.ErrCodeFileRead, "Failed to stat .env file", path, err)
	}

	if err := gotenv.Load(path); err != nil {
		return false, errors.FileError(errors.ErrCodeFileMalformed, "Failed to parse .env file", path, err)
	}
	return true, nil
}

// ResolveOptions describes where the running process lives
type ResolveOptions struct {
	ExecutablePath string
	WorkDir        string
	Logger         *observability.Logger
}

// Resolved is the outcome of configuration resolution
type Resolved struct {
	Root      string
	Inference Inference
	DotEnv    bool
	Env       Environment
	Layout    Layout
}

// Resolve determines the project root, loads .env and snapshots the
// resulting environment. Calling it again with the same state yields the same result.
func Resolve(opts ResolveOptions) (*Resolved, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}

	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to determine working directory")
		}
		opts.WorkDir = wd
	}

	root, inference := ResolveProjectRoot(FromOS(), opts.ExecutablePath, opts.WorkDir)
	cleaned, err := common.CleanPath(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid project root").
			WithContext("root", root)
	}
	root = cleaned
	if inference == RootFromWorkDir {
		logger.Warnf("%s not set and executable is not under a %q directory; using working directory %s as project root, which may be wrong",
			ProjectRootKey, ScriptsDirName, root)
	}

	loaded, err := LoadDotEnv(root)
	if err != nil {
		return nil, err
	}
	if loaded {
		logger.Debugf("Loaded environment from %s", filepath.Join(root, DotEnvFile))
	}

	env := FromOS()
	if env.Bool("OLISTPIPE_USE_KEYRING") {
		env = env.WithKeyring(KeyringService)
	}

	return &Resolved{
		Root:      root,
		Inference: inference,
		DotEnv:    loaded,
		Env:       env,
		Layout:    LayoutFromEnv(root, env),
	}, nil
}
