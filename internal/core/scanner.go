package core

// scanner.go lists the inbox files a job will process.
//
// A file is pending when its name carries one of the accepted extensions,
// contains none of the exclude patterns, and is not already present in the
// archive directory. The archive check is what makes a re-run after a partial
// run skip files that were already moved.

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ScanFilter selects inbox files. Both lists are matched case-insensitively.
// An empty Extensions list accepts every extension.
type ScanFilter struct {
	Extensions      []string
	ExcludePatterns []string
}

// FilterFor returns the scan filter declared by an adapter definition.
func FilterFor(def AdapterDefinition) ScanFilter {
	return ScanFilter{
		Extensions:      def.Extensions,
		ExcludePatterns: def.ExcludePatterns,
	}
}

// Matches reports whether name passes the extension and exclude checks.
func (f ScanFilter) Matches(name string) bool {
	lower := strings.ToLower(name)

	if len(f.Extensions) > 0 {
		ok := false
		for _, ext := range f.Extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			if strings.HasSuffix(lower, ext) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for _, pattern := range f.ExcludePatterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" && strings.Contains(lower, pattern) {
			return false
		}
	}

	return true
}

// Enumerate returns the pending file names in sourceDir, sorted lexicographically.
// It fails with *DiscoveryError when either directory is missing, is not a
// directory, or cannot be read.
func Enumerate(sourceDir, destDir string, filter ScanFilter) ([]string, error) {
	if err := checkDir(sourceDir); err != nil {
		return nil, err
	}
	if err := checkDir(destDir); err != nil {
		return nil, err
	}
	if cleanDir(sourceDir) == cleanDir(destDir) {
		return nil, &DiscoveryError{Dir: destDir, Err: errors.New("archive directory must differ from inbox")}
	}

	archived, err := os.ReadDir(destDir)
	if err != nil {
		return nil, &DiscoveryError{Dir: destDir, Err: err}
	}
	done := make(map[string]struct{}, len(archived))
	for _, entry := range archived {
		if !entry.IsDir() {
			done[entry.Name()] = struct{}{}
		}
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, &DiscoveryError{Dir: sourceDir, Err: err}
	}

	var pending []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !filter.Matches(name) {
			continue
		}
		if _, ok := done[name]; ok {
			continue
		}
		pending = append(pending, name)
	}

	sort.Strings(pending)
	return pending, nil
}

// requireDir rejects a blank directory. It runs before any path is made
// absolute, since a blank path would otherwise resolve to the working directory.
func requireDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return &DiscoveryError{Dir: dir, Err: errors.New("directory not configured")}
	}
	return nil
}

func checkDir(dir string) error {
	if err := requireDir(dir); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return &DiscoveryError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return &DiscoveryError{Dir: dir, Err: fmt.Errorf("not a directory")}
	}
	return nil
}
