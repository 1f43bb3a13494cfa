package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadMountConfig(t *testing.T) {
	conf := `
mount:
  - type: bind
    source: /usr
    target: /usr
    readonly: true
  - type: tmpfs
    target: /dev/shm
    data: size=4m
`
	name := filepath.Join(t.TempDir(), "mount.yaml")
	if err := os.WriteFile(name, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	mounts, err := ReadMountConfig(name)
	if err != nil {
		t.Fatalf("ReadMountConfig: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("got %d mounts, want 2", len(mounts))
	}
	if m := mounts[0]; m.Type != "bind" || m.Source != "/usr" || m.Target != "/usr" || !m.Readonly {
		t.Errorf("mount 0 = %+v", m)
	}
	if m := mounts[1]; m.Type != "tmpfs" || m.Target != "/dev/shm" || m.Data != "size=4m" {
		t.Errorf("mount 1 = %+v", m)
	}
}

func TestReadMountConfigMissing(t *testing.T) {
	mounts, err := ReadMountConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config must not error, got %v", err)
	}
	if mounts != nil {
		t.Errorf("got %v, want nil", mounts)
	}
}

func TestReadMountConfigBadType(t *testing.T) {
	name := filepath.Join(t.TempDir(), "mount.yaml")
	if err := os.WriteFile(name, []byte("mount:\n  - type: proc\n    target: /proc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadMountConfig(name); err == nil {
		t.Error("unknown mount type must be rejected")
	}
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/usr/lib", "/root/usr/lib"},
		{"usr/lib", "/root/usr/lib"},
		{"/", "/root"},
		{"//dev//shm", "/root/dev/shm"},
	}
	for _, tc := range tests {
		if got := resolveTarget("/root", tc.target); got != tc.want {
			t.Errorf("resolveTarget(/root, %q) = %q, want %q", tc.target, got, tc.want)
		}
	}
}

func TestScratchRoot(t *testing.T) {
	if got := scratchRoot("abc"); got != "/tmp/judger_sandbox_abc" {
		t.Errorf("scratchRoot(abc) = %q", got)
	}
}
