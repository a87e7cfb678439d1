package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// CredentialsPathEnv overrides the credentials file location when set.
const CredentialsPathEnv = "CREDENTIALS_PATH"

// Paths contains all filesystem locations the auditor reads or writes.
// Everything is resolved relative to the executable directory, never the
// current working directory, so the tool behaves the same wherever it is
// launched from.
type Paths struct {
	ExecutableDir   string
	ResultDir       string
	ErrorsDir       string
	LogsDir         string
	CredentialsFile string
}

// GetPaths resolves the application paths relative to the executable.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	exeDir := filepath.Dir(exe)

	p := &Paths{
		ExecutableDir: exeDir,
		ResultDir:     filepath.Join(exeDir, "result"),
		ErrorsDir:     filepath.Join(exeDir, "errors"),
		LogsDir:       filepath.Join(exeDir, "logs"),
	}
	p.CredentialsFile = p.resolveCredentialsFile()
	return p, nil
}

// resolveCredentialsFile tries the known credentials.txt locations in
// order: environment override, executable directory, working directory.
// The first existing candidate wins; otherwise the executable-relative
// default is returned so the caller reports a sensible missing path.
func (p *Paths) resolveCredentialsFile() string {
	var candidates []string
	if env := os.Getenv(CredentialsPathEnv); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, filepath.Join(p.ExecutableDir, "credentials.txt"))
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "credentials.txt"))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[0]
}

// EnsureDirectories creates the output and log directories. Called once
// from main before any remote work; nothing is created at import time.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ResultDir, p.ErrorsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetLogPath returns the path for a log file in the logs directory.
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetResultPath returns the path for a workbook in the result directory.
func (p *Paths) GetResultPath(filename string) string {
	return filepath.Join(p.ResultDir, filename)
}

// GetErrorsPath returns the path for a workbook in the errors directory.
func (p *Paths) GetErrorsPath(filename string) string {
	return filepath.Join(p.ErrorsDir, filename)
}
