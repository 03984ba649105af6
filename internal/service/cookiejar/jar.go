package cookiejar

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Jar manages persisted per-user cookie files under a single root
// directory, one file per user. Files survive across jobs and are only
// removed by Sweep once their TTL elapses.
type Jar struct {
	root string
}

// NewJar returns a Jar rooted at dir. The directory is created by the
// bootstrap, not here.
func NewJar(dir string) *Jar {
	return &Jar{root: dir}
}

// Path returns the cookie file location for userID. The file may or may
// not exist.
func (j *Jar) Path(userID int64) string {
	return filepath.Join(j.root, fmt.Sprintf("%d_cookies.txt", userID))
}

// Exists reports whether a cookie file is currently saved for userID.
func (j *Jar) Exists(userID int64) bool {
	info, err := os.Stat(j.Path(userID))
	return err == nil && info.Mode().IsRegular()
}

// Save writes the uploaded cookie bytes for userID, overwriting any
// previous file. At most one cookie file per user exists at a time.
func (j *Jar) Save(userID int64, data []byte) (string, error) {
	path := j.Path(userID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("save cookie file: %w", err)
	}
	return path, nil
}

// Sweep removes cookie files whose last modification is older than ttl
// and reports how many were deleted. It is idempotent and tolerates
// files vanishing underneath it, so concurrent sweeps and concurrent
// job reads are safe.
func (j *Jar) Sweep(ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cookie dir: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted between ReadDir and Info, nothing to do.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.root, entry.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("[cookiejar] failed to remove %s: %v", path, err)
			}
			continue
		}
		removed++
	}
	return removed, nil
}

// OwnerOf extracts the owning user id from a cookie file name, for logs
// and diagnostics.
func OwnerOf(name string) (int64, bool) {
	base := strings.TrimSuffix(filepath.Base(name), "_cookies.txt")
	if base == filepath.Base(name) {
		return 0, false
	}
	id, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
