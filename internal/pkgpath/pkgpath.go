// Package pkgpath locates ROS package directories on ROS_PACKAGE_PATH,
// backing the $(find pkg) substitution. Unlike a full message/service file
// walk, only the package directory itself is needed, so the walk stops
// descending into a package's subdirectories as soon as one is found.
package pkgpath

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const manifestFile = "package.xml"

func isPackageDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, manifestFile))
	return err == nil && !info.IsDir()
}

// Locator caches the colon-separated ROS_PACKAGE_PATH search entries and the
// packages discovered so far, so repeated $(find pkg) calls for the same
// package within one launch don't re-walk the filesystem.
type Locator struct {
	searchPath []string
	cache      map[string]string
}

// NewLocator builds a Locator over the given colon-separated search path
// (typically os.Getenv("ROS_PACKAGE_PATH")).
func NewLocator(rosPackagePath string) *Locator {
	var paths []string
	for _, p := range filepath.SplitList(rosPackagePath) {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return &Locator{searchPath: paths, cache: make(map[string]string)}
}

// Find returns the absolute path to the named package: the first directory
// named pkg, under any search-path entry, that directly contains a
// package.xml manifest. Subdirectories beneath a directory that is itself a
// package are never descended into, matching libgengo's FindAllMessages
// walk. Returns an error if no such directory is found.
func (l *Locator) Find(pkg string) (string, error) {
	if dir, ok := l.cache[pkg]; ok {
		return dir, nil
	}

	for _, root := range l.searchPath {
		found := ""
		walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // skip unreadable entries, keep walking siblings
			}
			if !info.IsDir() {
				return nil
			}
			if isPackageDir(path) {
				if filepath.Base(path) == pkg && found == "" {
					found = path
				}
				return filepath.SkipDir
			}
			return nil
		})
		if walkErr != nil {
			continue
		}
		if found != "" {
			abs, err := filepath.Abs(found)
			if err != nil {
				return "", errors.Wrapf(err, "find pkg %s", pkg)
			}
			l.cache[pkg] = abs
			return abs, nil
		}
	}
	return "", errors.Errorf("find pkg %s: package not found on ROS_PACKAGE_PATH", pkg)
}
