package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStaleEntries(t *testing.T) {
	base := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	mkdir := func(name string, aged bool) string {
		t.Helper()
		p := filepath.Join(base, name)
		if err := os.Mkdir(p, 0o755); err != nil {
			t.Fatal(err)
		}
		if aged {
			if err := os.Chtimes(p, old, old); err != nil {
				t.Fatal(err)
			}
		}
		return p
	}
	stale := mkdir(scratchPrefix+"old", true)
	mkdir(scratchPrefix+"new", false)
	mkdir("unrelated_old", true)
	// A plain file with a matching name must not be picked up.
	if err := os.WriteFile(filepath.Join(base, scratchPrefix+"file"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got := staleEntries(base, scratchPrefix, time.Now().Add(-time.Hour), zap.NewNop())
	if len(got) != 1 || got[0] != stale {
		t.Errorf("staleEntries = %v, want [%s]", got, stale)
	}
}

func TestStaleEntriesMissingBase(t *testing.T) {
	got := staleEntries(filepath.Join(t.TempDir(), "nope"), scratchPrefix, time.Now(), zap.NewNop())
	if got != nil {
		t.Errorf("missing base: got %v, want nil", got)
	}
}

func TestSweepScratch(t *testing.T) {
	base := t.TempDir()
	stale := filepath.Join(base, scratchPrefix+"old")
	fresh := filepath.Join(base, scratchPrefix+"new")
	for _, d := range []string{stale, fresh} {
		if err := os.MkdirAll(filepath.Join(d, "tmp"), 0o777); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(d, "tmp", "stdout"), []byte("x"), 0o666); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	sweepScratch(base, time.Now().Add(-time.Hour), zap.NewNop())

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale scratch still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh scratch should have been kept: %v", err)
	}
}

func TestSweepCgroupsSelection(t *testing.T) {
	// Plain directories stand in for cgroups here, so removal fails
	// once the kill file exists; a real controller consumes that write
	// instead. The visible effect is which entries got the kill.
	root := t.TempDir()
	stale := filepath.Join(root, cgroupPrefix+"old")
	fresh := filepath.Join(root, cgroupPrefix+"new")
	foreign := filepath.Join(root, "init")
	for _, d := range []string{stale, fresh, foreign} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	sweepCgroups(root, time.Now().Add(-time.Hour), zap.NewNop())

	if _, err := os.Stat(filepath.Join(stale, "cgroup.kill")); err != nil {
		t.Errorf("stale group was not killed: %v", err)
	}
	for _, d := range []string{fresh, foreign} {
		if _, err := os.Stat(filepath.Join(d, "cgroup.kill")); !os.IsNotExist(err) {
			t.Errorf("%s was touched: %v", d, err)
		}
	}
}
