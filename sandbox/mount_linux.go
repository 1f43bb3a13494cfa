package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	scratchBase   = "/tmp"
	scratchPrefix = "judger_sandbox_"
)

// scratchRoot is the per-run sandbox root below /tmp. The request's
// sandbox id keeps concurrent runs apart.
func scratchRoot(id string) string {
	return filepath.Join(scratchBase, scratchPrefix+id)
}

// MountSpec defines one extra mount applied inside the sandbox root
// after the mandatory rootfs bind and scratch tmpfs. Type is bind or
// tmpfs.
type MountSpec struct {
	Type     string `yaml:"type"`
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	Readonly bool   `yaml:"readonly"`
	Data     string `yaml:"data"`
}

// ReadMountConfig loads the optional extra mount list. A missing file
// just disables the feature.
func ReadMountConfig(name string) ([]MountSpec, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var conf struct {
		Mount []MountSpec `yaml:"mount"`
	}
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	for _, m := range conf.Mount {
		switch m.Type {
		case "bind", "tmpfs":
		default:
			return nil, fmt.Errorf("%s: invalid mount type %q", name, m.Type)
		}
	}
	return conf.Mount, nil
}

// mountPlan records what was mounted so teardown can unwind it in
// reverse.
type mountPlan struct {
	root    string   // bind mount of the rootfs image, remounted read-only
	scratch string   // root/tmp, the only writable area in the sandbox
	extra   []string // extra mount targets in mount order
}

// setupMounts builds the sandbox filesystem view: the scratch root
// directory, the read-only rootfs bind over it, the writable tmpfs on
// its tmp subdirectory and any extra mounts from the operator
// configuration. A partial failure needs no unwinding here: the mounts
// live in this namespace and die with it, only the scratch directory
// itself survives for the sweeper.
func setupMounts(rootfs, id, tmpfsSize string, extra []MountSpec) (*mountPlan, error) {
	p := &mountPlan{root: scratchRoot(id)}
	p.scratch = filepath.Join(p.root, "tmp")
	if err := os.Mkdir(p.root, 0o777); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	if err := unix.Mount(rootfs, p.root, "", unix.MS_BIND, ""); err != nil {
		return nil, fmt.Errorf("bind rootfs %s: %w", rootfs, err)
	}
	if err := unix.Mount("", p.root, "", unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_BIND, ""); err != nil {
		return nil, fmt.Errorf("remount rootfs read-only: %w", err)
	}
	if err := unix.Mount("tmpfs", p.scratch, "tmpfs", 0, "mode=0777,size="+tmpfsSize); err != nil {
		return nil, fmt.Errorf("mount scratch tmpfs: %w", err)
	}
	for _, m := range extra {
		if err := p.applyExtra(m); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *mountPlan) applyExtra(m MountSpec) error {
	target := resolveTarget(p.root, m.Target)
	// Only works under the tmpfs; everywhere else the read-only rootfs
	// must already provide the mount point.
	_ = os.MkdirAll(target, 0o755)
	switch m.Type {
	case "bind":
		source := m.Source
		if !filepath.IsAbs(source) {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			source = filepath.Join(wd, source)
		}
		if err := unix.Mount(source, target, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("bind %s on %s: %w", source, target, err)
		}
		if m.Readonly {
			if err := unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_BIND, ""); err != nil {
				return fmt.Errorf("remount %s read-only: %w", target, err)
			}
		}
	case "tmpfs":
		if err := unix.Mount("tmpfs", target, "tmpfs", 0, m.Data); err != nil {
			return fmt.Errorf("mount tmpfs on %s: %w", target, err)
		}
	default:
		return fmt.Errorf("invalid mount type %q", m.Type)
	}
	p.extra = append(p.extra, target)
	return nil
}

// resolveTarget maps a mount target onto the sandbox root. Absolute
// targets are re-rooted, relative ones resolve against the root.
func resolveTarget(root, target string) string {
	if path.IsAbs(target) {
		target = path.Clean(target)[1:]
	}
	return filepath.Join(root, target)
}

// teardown unwinds the plan and removes the scratch root. Every step is
// best-effort: the verdict is already decided, and leftovers are the
// sweeper's business.
func (p *mountPlan) teardown(logger *zap.Logger) {
	for i := len(p.extra) - 1; i >= 0; i-- {
		if err := unix.Unmount(p.extra[i], 0); err != nil {
			logger.Warn("unmount", zap.String("target", p.extra[i]), zap.Error(err))
		}
	}
	if err := unix.Unmount(p.scratch, 0); err != nil {
		logger.Warn("unmount scratch tmpfs", zap.Error(err))
	}
	if err := unix.Unmount(p.root, 0); err != nil {
		logger.Warn("unmount rootfs bind", zap.Error(err))
	}
	if err := os.Remove(p.root); err != nil {
		logger.Warn("remove scratch root", zap.Error(err))
	}
}
