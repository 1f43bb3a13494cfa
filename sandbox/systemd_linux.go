package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	ddbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const cgroupMount = "/sys/fs/cgroup"

// PrepareCgroupRoot obtains a writable cgroup v2 directory with the
// cpu, memory and pids controllers enabled, for requests that leave
// cgroup_root empty. On a systemd host it moves the judger into a
// delegated transient scope first; when no bus is reachable it assumes
// a container environment and takes over the current cgroup directly.
// Either way the judger itself ends up parked in an init leaf so the
// returned directory only ever holds child groups.
func PrepareCgroupRoot(logger *zap.Logger) (string, error) {
	conn, err := getSystemdConnection()
	if err != nil {
		logger.Info("connecting to systemd dbus failed, assuming container environment, taking over the current cgroup", zap.Error(err))
	} else {
		defer conn.Close()
		scope := fmt.Sprintf("go-judger-%d.scope", os.Getpid())
		if err := startTransientUnit(conn, scope); err != nil {
			return "", err
		}
		logger.Info("moved into delegated scope", zap.String("scope", scope))
	}
	return nestCurrentCgroup(logger)
}

func getSystemdConnection() (*dbus.Conn, error) {
	if os.Getuid() == 0 {
		return dbus.NewSystemConnectionContext(context.TODO())
	}
	return dbus.NewUserConnectionContext(context.TODO())
}

func startTransientUnit(conn *dbus.Conn, scope string) error {
	properties := []dbus.Property{
		dbus.PropDescription("go judger - single shot judging sandbox"),
		dbus.PropPids(uint32(os.Getpid())),
		newSystemdProperty("Delegate", true),
	}
	ch := make(chan string, 1)
	if _, err := conn.StartTransientUnitContext(context.TODO(), scope, "replace", properties, ch); err != nil {
		return fmt.Errorf("start transient unit: %w", err)
	}
	if s := <-ch; s != "done" {
		return fmt.Errorf("start transient unit %s: job result %q", scope, s)
	}
	return nil
}

func newSystemdProperty(name string, units any) dbus.Property {
	return dbus.Property{
		Name:  name,
		Value: ddbus.MakeVariant(units),
	}
}

// nestCurrentCgroup turns the judger's current cgroup into a usable
// root: the judger parks itself in an init leaf so the parent stops
// having member processes, then the needed controllers are switched on
// for children.
func nestCurrentCgroup(logger *zap.Logger) (string, error) {
	dir, err := currentCgroupDir()
	if err != nil {
		return "", err
	}
	init := filepath.Join(dir, "init")
	if err := os.Mkdir(init, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("create init leaf: %w", err)
	}
	if err := os.WriteFile(filepath.Join(init, "cgroup.procs"), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return "", fmt.Errorf("move self to init leaf: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cgroup.subtree_control"), []byte("+cpu +memory +pids"), 0o644); err != nil {
		return "", fmt.Errorf("enable controllers: %w", err)
	}
	logger.Info("prepared cgroup root", zap.String("dir", dir))
	return dir, nil
}

// currentCgroupDir resolves the calling process's v2 cgroup directory
// from /proc/self/cgroup.
func currentCgroupDir() (string, error) {
	f, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		if path, ok := strings.CutPrefix(s.Text(), "0::"); ok {
			return filepath.Join(cgroupMount, path), nil
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no cgroup v2 entry in /proc/self/cgroup")
}
