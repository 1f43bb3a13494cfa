// Package model defines the judging request and response types plus the
// binary frame layout they use on the supervisor's stdin and stdout.
package model

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/theoj/go-judger/wire"
)

// InputFile is staged into the sandbox scratch directory before the
// target program starts.
type InputFile struct {
	Name    string
	Content []byte
	Mode    uint32
}

// OutputFile is read back from the scratch directory after the run.
// Requested files the program never created come back empty.
type OutputFile struct {
	Name    string
	Content []byte
}

// Config is a single judging request. It is immutable once parsed.
type Config struct {
	// TimeLimitMS is the advertised CPU budget in milliseconds. The
	// hard kill fires at TimeLimitMS plus the fixed grace period.
	TimeLimitMS uint32
	// MemoryLimitMB becomes memory.max, in bytes = MB * 1024 * 1024.
	MemoryLimitMB int64
	// PidsLimit becomes pids.max.
	PidsLimit uint32
	// Rootfs is the host path of the read-only filesystem image.
	Rootfs string
	// TmpfsSize is passed verbatim to the tmpfs size= mount option.
	TmpfsSize string
	// CgroupRoot is a writable cgroup v2 directory on the host.
	CgroupRoot string
	// SandboxID names the scratch directory and the cgroup child. The
	// caller guarantees uniqueness across concurrent runs.
	SandboxID string
	// Stdin is written to the scratch file "stdin" and reopened as the
	// target's standard input.
	Stdin []byte
	// Cmdline is the target argv; element 0 is an absolute path inside
	// the sandboxed filesystem view.
	Cmdline []string
	// InputFiles are staged into the scratch before the run.
	InputFiles []InputFile
	// OutputNames are read back from the scratch after the run.
	OutputNames []string
}

// Result is the response for one run.
type Result struct {
	Verdict Verdict
	// TimeMS is cgroup user CPU time, cpu.stat user_usec / 1000.
	TimeMS uint32
	// MemoryMB is the floor of the cgroup peak byte count / 2^20.
	MemoryMB int64
	Stdout   []byte
	Stderr   []byte
	// Outputs follow the request's OutputNames order.
	Outputs []OutputFile
}

// InternalErrorPrefix marks supervisor diagnostics carried in the
// stderr stream of a UKE response.
const InternalErrorPrefix = "Internal Error: "

// InternalError builds the UKE response reported when judging could not
// run to completion.
func InternalError(err error) Result {
	return Result{
		Verdict: VerdictUKE,
		Stderr:  []byte(InternalErrorPrefix + err.Error()),
	}
}

// Validate rejects requests that cannot name their sandbox resources or
// have nothing to execute.
func (c *Config) Validate() error {
	if c.SandboxID == "" {
		return errors.New("empty sandbox id")
	}
	if strings.ContainsAny(c.SandboxID, "/\x00") {
		return fmt.Errorf("sandbox id %q is not a plain token", c.SandboxID)
	}
	if len(c.Cmdline) == 0 {
		return errors.New("empty cmdline")
	}
	return nil
}

// ReadConfig decodes one request frame.
func ReadConfig(r io.Reader) (Config, error) {
	var (
		c   Config
		err error
	)
	if c.TimeLimitMS, err = wire.ReadUint32(r); err != nil {
		return c, fmt.Errorf("time limit: %w", err)
	}
	if c.MemoryLimitMB, err = wire.ReadInt64(r); err != nil {
		return c, fmt.Errorf("memory limit: %w", err)
	}
	if c.PidsLimit, err = wire.ReadUint32(r); err != nil {
		return c, fmt.Errorf("pids limit: %w", err)
	}
	if c.Rootfs, err = wire.ReadString(r); err != nil {
		return c, fmt.Errorf("rootfs: %w", err)
	}
	if c.TmpfsSize, err = wire.ReadString(r); err != nil {
		return c, fmt.Errorf("tmpfs size: %w", err)
	}
	if c.CgroupRoot, err = wire.ReadString(r); err != nil {
		return c, fmt.Errorf("cgroup root: %w", err)
	}
	if c.SandboxID, err = wire.ReadString(r); err != nil {
		return c, fmt.Errorf("sandbox id: %w", err)
	}
	if c.Stdin, err = wire.ReadBytes(r); err != nil {
		return c, fmt.Errorf("stdin payload: %w", err)
	}
	if c.Cmdline, err = wire.ReadStrings(r); err != nil {
		return c, fmt.Errorf("cmdline: %w", err)
	}
	n, err := wire.ReadUint32(r)
	if err != nil {
		return c, fmt.Errorf("input file count: %w", err)
	}
	c.InputFiles = make([]InputFile, 0, n)
	for i := uint32(0); i < n; i++ {
		var f InputFile
		if f.Name, err = wire.ReadString(r); err != nil {
			return c, fmt.Errorf("input file %d name: %w", i, err)
		}
		if f.Content, err = wire.ReadBytes(r); err != nil {
			return c, fmt.Errorf("input file %d content: %w", i, err)
		}
		if f.Mode, err = wire.ReadUint32(r); err != nil {
			return c, fmt.Errorf("input file %d mode: %w", i, err)
		}
		c.InputFiles = append(c.InputFiles, f)
	}
	if c.OutputNames, err = wire.ReadStrings(r); err != nil {
		return c, fmt.Errorf("output names: %w", err)
	}
	return c, nil
}

// WriteConfig encodes one request frame.
func WriteConfig(w io.Writer, c *Config) error {
	if err := wire.WriteUint32(w, c.TimeLimitMS); err != nil {
		return err
	}
	if err := wire.WriteInt64(w, c.MemoryLimitMB); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, c.PidsLimit); err != nil {
		return err
	}
	for _, s := range []string{c.Rootfs, c.TmpfsSize, c.CgroupRoot, c.SandboxID} {
		if err := wire.WriteString(w, s); err != nil {
			return err
		}
	}
	if err := wire.WriteBytes(w, c.Stdin); err != nil {
		return err
	}
	if err := wire.WriteStrings(w, c.Cmdline); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, uint32(len(c.InputFiles))); err != nil {
		return err
	}
	for _, f := range c.InputFiles {
		if err := wire.WriteString(w, f.Name); err != nil {
			return err
		}
		if err := wire.WriteBytes(w, f.Content); err != nil {
			return err
		}
		if err := wire.WriteUint32(w, f.Mode); err != nil {
			return err
		}
	}
	return wire.WriteStrings(w, c.OutputNames)
}

// ReadResult decodes one response frame. Unknown verdict codes are
// normalized to UKE.
func ReadResult(r io.Reader) (Result, error) {
	var res Result
	code, err := wire.ReadUint32(r)
	if err != nil {
		return res, fmt.Errorf("verdict: %w", err)
	}
	res.Verdict = VerdictFromCode(code)
	if res.TimeMS, err = wire.ReadUint32(r); err != nil {
		return res, fmt.Errorf("time: %w", err)
	}
	if res.MemoryMB, err = wire.ReadInt64(r); err != nil {
		return res, fmt.Errorf("memory: %w", err)
	}
	if res.Stdout, err = wire.ReadBytes(r); err != nil {
		return res, fmt.Errorf("stdout: %w", err)
	}
	if res.Stderr, err = wire.ReadBytes(r); err != nil {
		return res, fmt.Errorf("stderr: %w", err)
	}
	n, err := wire.ReadUint32(r)
	if err != nil {
		return res, fmt.Errorf("output count: %w", err)
	}
	res.Outputs = make([]OutputFile, 0, n)
	for i := uint32(0); i < n; i++ {
		var f OutputFile
		if f.Name, err = wire.ReadString(r); err != nil {
			return res, fmt.Errorf("output %d name: %w", i, err)
		}
		if f.Content, err = wire.ReadBytes(r); err != nil {
			return res, fmt.Errorf("output %d content: %w", i, err)
		}
		res.Outputs = append(res.Outputs, f)
	}
	return res, nil
}

// WriteResult encodes one response frame.
func WriteResult(w io.Writer, res *Result) error {
	if err := wire.WriteUint32(w, uint32(res.Verdict)); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, res.TimeMS); err != nil {
		return err
	}
	if err := wire.WriteInt64(w, res.MemoryMB); err != nil {
		return err
	}
	if err := wire.WriteBytes(w, res.Stdout); err != nil {
		return err
	}
	if err := wire.WriteBytes(w, res.Stderr); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, uint32(len(res.Outputs))); err != nil {
		return err
	}
	for _, f := range res.Outputs {
		if err := wire.WriteString(w, f.Name); err != nil {
			return err
		}
		if err := wire.WriteBytes(w, f.Content); err != nil {
			return err
		}
	}
	return nil
}
