package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/theoj/go-judger/model"
	"github.com/theoj/go-judger/wire"
)

// The tests re-execute this test binary as a stand-in judger; the env
// variable selects how the stand-in behaves.
const helperEnv = "GO_JUDGER_CLIENT_HELPER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		runHelper(mode)
		return
	}
	os.Exit(m.Run())
}

func runHelper(mode string) {
	cfg, err := model.ReadConfig(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper: read request:", err)
		os.Exit(2)
	}
	switch mode {
	case "echo":
		res := model.Result{
			Verdict:  model.VerdictOK,
			TimeMS:   cfg.TimeLimitMS / 2,
			MemoryMB: 3,
			Stdout:   cfg.Stdin,
			Stderr:   nil,
		}
		for _, name := range cfg.OutputNames {
			res.Outputs = append(res.Outputs, model.OutputFile{Name: name, Content: []byte(name)})
		}
		if err := model.WriteResult(os.Stdout, &res); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "fail":
		res := model.InternalError(errors.New("mount scratch tmpfs: no space left on device"))
		_ = model.WriteResult(os.Stdout, &res)
		os.Exit(1)
	case "truncate":
		_ = wire.WriteUint32(os.Stdout, 0)
		os.Exit(0)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

func testConfig() model.Config {
	return model.Config{
		TimeLimitMS:   1000,
		MemoryLimitMB: 64,
		PidsLimit:     16,
		Rootfs:        "/srv/rootfs",
		TmpfsSize:     "16M",
		CgroupRoot:    "/sys/fs/cgroup/judge",
		SandboxID:     "clienttest",
		Stdin:         []byte("ping\n"),
		Cmdline:       []string{"/bin/cat"},
		OutputNames:   []string{"trace.out"},
	}
}

func TestRunRoundTrip(t *testing.T) {
	t.Setenv(helperEnv, "echo")
	c := &Client{Path: os.Args[0]}
	cfg := testConfig()
	res, err := c.Run(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Verdict != model.VerdictOK {
		t.Errorf("verdict = %s, want OK", res.Verdict)
	}
	if res.TimeMS != 500 || res.MemoryMB != 3 {
		t.Errorf("usage = %d ms / %d mb, want 500 / 3", res.TimeMS, res.MemoryMB)
	}
	if !bytes.Equal(res.Stdout, cfg.Stdin) {
		t.Errorf("stdout = %q, want %q", res.Stdout, cfg.Stdin)
	}
	if len(res.Outputs) != 1 || res.Outputs[0].Name != "trace.out" {
		t.Errorf("outputs = %+v", res.Outputs)
	}
}

func TestRunJudgerFailure(t *testing.T) {
	t.Setenv(helperEnv, "fail")
	c := &Client{Path: os.Args[0]}
	cfg := testConfig()
	res, err := c.Run(context.Background(), &cfg)
	if err == nil {
		t.Fatal("want error for non-zero judger exit")
	}
	if !strings.Contains(err.Error(), "exited abnormally") {
		t.Errorf("err = %v", err)
	}
	// The response still carries the internal-error report.
	if res.Verdict != model.VerdictUKE {
		t.Errorf("verdict = %s, want UKE", res.Verdict)
	}
	if !strings.HasPrefix(string(res.Stderr), model.InternalErrorPrefix) {
		t.Errorf("stderr = %q, want %s prefix", res.Stderr, model.InternalErrorPrefix)
	}
}

func TestRunTruncatedResponse(t *testing.T) {
	t.Setenv(helperEnv, "truncate")
	c := &Client{Path: os.Args[0]}
	cfg := testConfig()
	if _, err := c.Run(context.Background(), &cfg); err == nil {
		t.Fatal("want error for truncated response")
	}
}

func TestRunCancel(t *testing.T) {
	t.Setenv(helperEnv, "hang")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c := &Client{Path: os.Args[0]}
	cfg := testConfig()
	start := time.Now()
	if _, err := c.Run(ctx, &cfg); err == nil {
		t.Fatal("want error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestRunMissingBinary(t *testing.T) {
	c := &Client{Path: "/nonexistent/go-judger"}
	cfg := testConfig()
	if _, err := c.Run(context.Background(), &cfg); err == nil {
		t.Fatal("want error for missing binary")
	}
}
