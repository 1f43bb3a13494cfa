package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// SweepStale removes scratch directories and cgroup children abandoned
// by judgers that died between setup and teardown. Only entries older
// than age are touched, so concurrent runs stay safe. Best-effort
// throughout: anything still busy is left for the next sweep.
func SweepStale(cgroupRoot string, age time.Duration, logger *zap.Logger) {
	cutoff := time.Now().Add(-age)
	sweepScratch(scratchBase, cutoff, logger)
	if cgroupRoot != "" {
		sweepCgroups(cgroupRoot, cutoff, logger)
	}
}

// staleEntries lists directories under base that carry the prefix and
// were last modified before the cutoff.
func staleEntries(base, prefix string, cutoff time.Time, logger *zap.Logger) []string {
	entries, err := os.ReadDir(base)
	if err != nil {
		logger.Warn("list stale candidates", zap.String("base", base), zap.Error(err))
		return nil
	}
	var stale []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		stale = append(stale, filepath.Join(base, e.Name()))
	}
	return stale
}

func sweepScratch(base string, cutoff time.Time, logger *zap.Logger) {
	for _, p := range staleEntries(base, scratchPrefix, cutoff, logger) {
		// Mounts normally died with their namespace; unwind whatever
		// still shows through before dropping the tree.
		_ = unix.Unmount(filepath.Join(p, "tmp"), 0)
		_ = unix.Unmount(p, 0)
		if err := os.RemoveAll(p); err != nil {
			logger.Warn("remove stale scratch", zap.String("path", p), zap.Error(err))
			continue
		}
		logger.Info("removed stale scratch", zap.String("path", p))
	}
}

func sweepCgroups(root string, cutoff time.Time, logger *zap.Logger) {
	for _, p := range staleEntries(root, cgroupPrefix, cutoff, logger) {
		// rmdir only succeeds once the group is empty; evict leftover
		// processes first and let a still-busy group wait for the next
		// sweep.
		_ = os.WriteFile(filepath.Join(p, "cgroup.kill"), []byte("1"), 0o644)
		if err := os.Remove(p); err != nil {
			logger.Warn("remove stale cgroup", zap.String("path", p), zap.Error(err))
			continue
		}
		logger.Info("removed stale cgroup", zap.String("path", p))
	}
}
