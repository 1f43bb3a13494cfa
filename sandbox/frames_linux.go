package sandbox

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/theoj/go-judger/model"
	"github.com/theoj/go-judger/wire"
)

// Each stage receives its working configuration as one frame on an
// inherited descriptor before touching anything else. The frames reuse
// the request codec, so the same tooling can decode them.

// initConfig is what the supervisor hands to the init stage: the
// judging request plus the supervisor-side settings that must cross
// the namespace boundary with it.
type initConfig struct {
	Judge  model.Config
	Debug  bool
	Mounts []MountSpec
	Filter []unix.SockFilter
}

// execConfig is what the init hands to the executor stage. It carries
// only what the executor needs, not the whole request.
type execConfig struct {
	SandboxID   string
	TimeLimitMS uint32
	Stdin       []byte
	Cmdline     []string
	Filter      []unix.SockFilter
}

// targetConfig is what the executor hands to the target stage over the
// pipe on fd 3.
type targetConfig struct {
	Cmdline []string
	Filter  []unix.SockFilter
}

func writeInitConfig(w io.Writer, c *initConfig) error {
	if err := model.WriteConfig(w, &c.Judge); err != nil {
		return err
	}
	if err := writeBool(w, c.Debug); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, uint32(len(c.Mounts))); err != nil {
		return err
	}
	for _, m := range c.Mounts {
		for _, s := range []string{m.Type, m.Source, m.Target, m.Data} {
			if err := wire.WriteString(w, s); err != nil {
				return err
			}
		}
		if err := writeBool(w, m.Readonly); err != nil {
			return err
		}
	}
	return writeFilter(w, c.Filter)
}

func readInitConfig(r io.Reader) (initConfig, error) {
	var c initConfig
	var err error
	if c.Judge, err = model.ReadConfig(r); err != nil {
		return c, fmt.Errorf("request: %w", err)
	}
	if c.Debug, err = readBool(r); err != nil {
		return c, fmt.Errorf("debug flag: %w", err)
	}
	n, err := wire.ReadUint32(r)
	if err != nil {
		return c, fmt.Errorf("mount count: %w", err)
	}
	c.Mounts = make([]MountSpec, 0, n)
	for i := uint32(0); i < n; i++ {
		var m MountSpec
		for _, dst := range []*string{&m.Type, &m.Source, &m.Target, &m.Data} {
			if *dst, err = wire.ReadString(r); err != nil {
				return c, fmt.Errorf("mount %d: %w", i, err)
			}
		}
		if m.Readonly, err = readBool(r); err != nil {
			return c, fmt.Errorf("mount %d readonly flag: %w", i, err)
		}
		c.Mounts = append(c.Mounts, m)
	}
	if c.Filter, err = readFilter(r); err != nil {
		return c, fmt.Errorf("filter: %w", err)
	}
	return c, nil
}

func writeExecConfig(w io.Writer, c *execConfig) error {
	if err := wire.WriteString(w, c.SandboxID); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, c.TimeLimitMS); err != nil {
		return err
	}
	if err := wire.WriteBytes(w, c.Stdin); err != nil {
		return err
	}
	if err := wire.WriteStrings(w, c.Cmdline); err != nil {
		return err
	}
	return writeFilter(w, c.Filter)
}

func readExecConfig(r io.Reader) (execConfig, error) {
	var c execConfig
	var err error
	if c.SandboxID, err = wire.ReadString(r); err != nil {
		return c, fmt.Errorf("sandbox id: %w", err)
	}
	if c.TimeLimitMS, err = wire.ReadUint32(r); err != nil {
		return c, fmt.Errorf("time limit: %w", err)
	}
	if c.Stdin, err = wire.ReadBytes(r); err != nil {
		return c, fmt.Errorf("stdin payload: %w", err)
	}
	if c.Cmdline, err = wire.ReadStrings(r); err != nil {
		return c, fmt.Errorf("cmdline: %w", err)
	}
	if c.Filter, err = readFilter(r); err != nil {
		return c, fmt.Errorf("filter: %w", err)
	}
	return c, nil
}

func writeTargetConfig(w io.Writer, c *targetConfig) error {
	if err := wire.WriteStrings(w, c.Cmdline); err != nil {
		return err
	}
	return writeFilter(w, c.Filter)
}

func readTargetConfig(r io.Reader) (targetConfig, error) {
	var c targetConfig
	var err error
	if c.Cmdline, err = wire.ReadStrings(r); err != nil {
		return c, fmt.Errorf("cmdline: %w", err)
	}
	if c.Filter, err = readFilter(r); err != nil {
		return c, fmt.Errorf("filter: %w", err)
	}
	return c, nil
}

// writeFilter encodes a classic BPF program as a u32 count followed by
// four u32 values per instruction. The widened jump offsets keep the
// layout word aligned.
func writeFilter(w io.Writer, filter []unix.SockFilter) error {
	if err := wire.WriteUint32(w, uint32(len(filter))); err != nil {
		return err
	}
	for _, f := range filter {
		for _, v := range [4]uint32{uint32(f.Code), uint32(f.Jt), uint32(f.Jf), f.K} {
			if err := wire.WriteUint32(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func readFilter(r io.Reader) ([]unix.SockFilter, error) {
	n, err := wire.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	filter := make([]unix.SockFilter, 0, n)
	for i := uint32(0); i < n; i++ {
		var v [4]uint32
		for j := range v {
			if v[j], err = wire.ReadUint32(r); err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
		}
		filter = append(filter, unix.SockFilter{
			Code: uint16(v[0]),
			Jt:   uint8(v[1]),
			Jf:   uint8(v[2]),
			K:    v[3],
		})
	}
	return filter, nil
}

func writeBool(w io.Writer, b bool) error {
	var v uint32
	if b {
		v = 1
	}
	return wire.WriteUint32(w, v)
}

func readBool(r io.Reader) (bool, error) {
	v, err := wire.ReadUint32(r)
	return v != 0, err
}
