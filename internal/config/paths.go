package config

import (
	"os"
	"path/filepath"
	"strings"
)

// baseDir anchors relative log and media paths. Binaries built by `go run`
// and `go test` live in the temp dir, so those fall back to the working
// directory.
func baseDir() string {
	exe, err := os.Executable()
	if err != nil {
		return workingDir()
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	if tmp, err := filepath.EvalSymlinks(os.TempDir()); err == nil && strings.HasPrefix(dir, tmp) {
		return workingDir()
	}
	return dir
}

func workingDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// ResolveRuntimePath turns a configured directory into an absolute path.
// Empty raw uses fallback; relative paths are joined to the binary's dir.
func ResolveRuntimePath(raw, fallback string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		p = strings.TrimSpace(fallback)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir(), p)
}
