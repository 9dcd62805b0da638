package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	sourceExt = ".mp3"
	targetExt = ".opus"
)

// DiscoveryError reports a source tree that cannot be enumerated.
type DiscoveryError struct {
	Root string
	Err  error
}

// Error formats discovery failures for logs and UI.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("cannot read source folder %s: %v", e.Root, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Discover walks sourceRoot and returns one job per .mp3 file (any case),
// mirrored under destRoot with an .opus extension, in lexical path order.
func Discover(sourceRoot, destRoot string) ([]*Job, error) {
	info, err := os.Stat(sourceRoot)
	if err != nil {
		return nil, &DiscoveryError{Root: sourceRoot, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Root: sourceRoot, Err: errors.New("not a directory")}
	}

	var files []string
	err = filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), sourceExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &DiscoveryError{Root: sourceRoot, Err: err}
	}
	sort.Strings(files)

	jobs := make([]*Job, 0, len(files))
	for _, path := range files {
		rel, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			return nil, &DiscoveryError{Root: sourceRoot, Err: err}
		}
		jobs = append(jobs, newJob(path, filepath.Join(destRoot, outputName(rel)), rel))
	}
	return jobs, nil
}

// outputName swaps the source extension for the Opus container extension.
func outputName(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + targetExt
}

// ShouldSkip reports whether skip-existing is enabled and the destination
// already exists. It never inspects file contents.
func ShouldSkip(job *Job, skipExisting bool) bool {
	if !skipExisting {
		return false
	}
	_, err := os.Stat(job.Dest)
	return err == nil
}
