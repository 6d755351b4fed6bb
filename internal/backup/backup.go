// Package backup implements the numbered-backup policy of spec.md §4.7:
// renaming an existing destination to "<name>.~N~" before it is
// overwritten, where N is one more than the highest existing backup
// number for that name.
package backup

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/tarka/xcp-sub000/internal/config"
)

var backupSuffix = regexp.MustCompile(`^\.~(\d+)~$`)

// NeedsBackup reports whether target should be renamed aside before a new
// file is written in its place (spec.md §4.7 needs_backup). disabled never
// backs up; auto only does so if a prior numbered backup already exists
// among target's siblings; numbered always does.
func NeedsBackup(target string, policy config.Backup) (bool, error) {
	if policy == config.BackupDisabled {
		return false, nil
	}
	if _, err := os.Lstat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if policy == config.BackupNumbered {
		return true, nil
	}
	// BackupAuto: only if a sibling already matches the numbered pattern.
	_, anyExisting, err := nextBackupNum(target)
	if err != nil {
		return false, err
	}
	return anyExisting, nil
}

// GetBackupPath returns target's next numbered backup path,
// "<target>.~N~" with N = 1 + max(existing N, 0) (spec.md §4.7
// get_backup_path, §8 property 5 backup monotonicity).
func GetBackupPath(target string) (string, error) {
	next, _, err := nextBackupNum(target)
	if err != nil {
		return "", err
	}
	return target + ".~" + strconv.FormatUint(next, 10) + "~", nil
}

// nextBackupNum scans target's directory for siblings matching
// "<basename>.~\d+~$" and returns 1 + the largest N found, along with
// whether any such sibling existed at all.
func nextBackupNum(target string) (next uint64, anyExisting bool, err error) {
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1, false, err
	}

	var maxN uint64
	for _, ent := range entries {
		name := ent.Name()
		if len(name) <= len(base) || name[:len(base)] != base {
			continue
		}
		m := backupSuffix.FindStringSubmatch(name[len(base):])
		if m == nil {
			continue
		}
		n, perr := strconv.ParseUint(m[1], 10, 64)
		if perr != nil {
			continue
		}
		anyExisting = true
		if n > maxN {
			maxN = n
		}
	}
	return maxN + 1, anyExisting, nil
}
