package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const cgroupPrefix = "judge."

// cgroupDir is the per-run control group below the delegated root.
func cgroupDir(root, id string) string {
	return filepath.Join(root, cgroupPrefix+id)
}

// cgroup is the v2 child group dedicated to one run. The executor is
// placed in it before its exec barrier opens, so every cycle and page
// of the target is accounted here.
type cgroup struct {
	path string
}

// createCgroup makes the child group and writes its limit knobs. The
// cpu quota is pinned to one full CPU; the time verdict comes from the
// measured user time, not from throttling. Swap is disabled so the
// memory limit is a hard wall the OOM killer enforces.
func createCgroup(root, id string, memoryLimitMB int64, pidsLimit uint32) (*cgroup, error) {
	c := &cgroup{path: cgroupDir(root, id)}
	if err := os.Mkdir(c.path, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create cgroup %s: %w", c.path, err)
	}
	limits := []struct{ name, value string }{
		{"cpu.max", "100000 100000"},
		{"pids.max", strconv.FormatUint(uint64(pidsLimit), 10)},
		{"memory.max", strconv.FormatInt(memoryLimitMB*1024*1024, 10)},
		{"memory.swap.max", "0"},
	}
	for _, l := range limits {
		if err := c.write(l.name, l.value); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *cgroup) write(name, value string) error {
	if err := os.WriteFile(filepath.Join(c.path, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (c *cgroup) read(name string) string {
	b, err := os.ReadFile(filepath.Join(c.path, name))
	if err != nil {
		return ""
	}
	return string(b)
}

// addProcess moves a process into the group. Must happen before the
// process starts doing accountable work.
func (c *cgroup) addProcess(pid int) error {
	return c.write("cgroup.procs", strconv.Itoa(pid))
}

// usage harvests the counters after the run. Reads never fail: a
// missing file or key counts as zero, which covers kernels without
// memory.peak. The group still exists here, so the counters include
// everything the target ever charged, exited or not.
func (c *cgroup) usage() usage {
	var u usage
	if v, err := strconv.ParseInt(flatKeyValue(c.read("cpu.stat"), "user_usec"), 10, 64); err == nil {
		u.TimeMS = uint32(v / 1000)
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(c.read("memory.peak")), 10, 64); err == nil {
		u.PeakBytes = v
	}
	if v, err := strconv.ParseInt(flatKeyValue(c.read("memory.events"), "oom_kill"), 10, 64); err == nil {
		u.OOMKills = v
	}
	return u
}

// remove is the best-effort teardown. A failure leaves residue for the
// sweeper and never alters the verdict.
func (c *cgroup) remove(logger *zap.Logger) {
	if err := os.Remove(c.path); err != nil {
		logger.Warn("remove cgroup", zap.String("path", c.path), zap.Error(err))
	}
}

// flatKeyValue scans the whitespace separated pairs used by flat-keyed
// cgroup files such as cpu.stat. Absent keys read as "0".
func flatKeyValue(s, key string) string {
	fields := strings.Fields(s)
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == key {
			return fields[i+1]
		}
	}
	return "0"
}
