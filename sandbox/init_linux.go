package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/theoj/go-judger/model"
)

// RunInit is the process entry for the init role. It reads its frame
// from stdin, owns the sandbox construction inside the fresh
// namespaces, runs the executor stage, derives the verdict and writes
// exactly one result frame to stdout. Any failure before that frame
// exists exits non-zero and leaves the supervisor to report the run as
// broken.
func RunInit() int {
	ic, err := readInitConfig(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read init config:", err)
		return 1
	}
	logger := newRoleLogger(ic.Debug)
	defer logger.Sync()
	res, err := containerInit(&ic, logger)
	if err != nil {
		logger.Error("sandbox init failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := model.WriteResult(os.Stdout, &res); err != nil {
		fmt.Fprintln(os.Stderr, "write result:", err)
		return 1
	}
	return 0
}

// containerInit performs the namespaced half of a run. Teardown is
// deferred, so it also runs on the error paths; everything it failed
// to remove is the sweeper's business.
func containerInit(ic *initConfig, logger *zap.Logger) (model.Result, error) {
	cfg := &ic.Judge
	if err := unix.Sethostname([]byte(sandboxHostname)); err != nil {
		return model.Result{}, fmt.Errorf("set hostname: %w", err)
	}
	// Keep every mount in this namespace from leaking to the host.
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return model.Result{}, fmt.Errorf("make mounts private: %w", err)
	}
	plan, err := setupMounts(cfg.Rootfs, cfg.SandboxID, cfg.TmpfsSize, ic.Mounts)
	if err != nil {
		return model.Result{}, err
	}
	defer plan.teardown(logger)
	logger.Debug("sandbox filesystem ready", zap.String("root", plan.root))

	if err := writeInputFiles(plan.scratch, cfg.InputFiles); err != nil {
		return model.Result{}, err
	}
	cg, err := createCgroup(cfg.CgroupRoot, cfg.SandboxID, cfg.MemoryLimitMB, cfg.PidsLimit)
	if err != nil {
		return model.Result{}, err
	}
	defer cg.remove(logger)
	logger.Debug("control group ready", zap.String("path", cg.path))

	exitCode, err := runExecutorStage(ic, cg)
	if err != nil {
		return model.Result{}, err
	}
	u := cg.usage()
	if ce := logger.Check(zap.DebugLevel, "executor finished"); ce != nil {
		ce.Write(zap.Int("exitCode", exitCode),
			zap.Uint32("userTimeMs", u.TimeMS),
			zap.Int64("peakBytes", u.PeakBytes),
			zap.Int64("oomKills", u.OOMKills))
	}

	res := model.Result{
		Verdict:  deriveVerdict(exitCode, u, cfg.TimeLimitMS),
		TimeMS:   u.TimeMS,
		MemoryMB: u.PeakBytes / (1 << 20),
		Stdout:   readScratch(plan.scratch, "stdout"),
		Stderr:   readScratch(plan.scratch, "stderr"),
	}
	res.Outputs = make([]model.OutputFile, 0, len(cfg.OutputNames))
	for _, name := range cfg.OutputNames {
		res.Outputs = append(res.Outputs, model.OutputFile{
			Name:    name,
			Content: readScratch(plan.scratch, name),
		})
	}
	return res, nil
}

// runExecutorStage spawns the executor in its namespaces, covers it
// with the control group and releases it through the barrier. The
// barrier guarantees the group covers the target before it can spend
// its first accountable microsecond.
func runExecutorStage(ic *initConfig, cg *cgroup) (int, error) {
	barrierR, barrierW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("open barrier pipe: %w", err)
	}
	defer barrierW.Close()

	cmd := exec.Command(selfExe, RoleExec)
	cmd.SysProcAttr = execSysProcAttr()
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{barrierR}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		barrierR.Close()
		return 0, fmt.Errorf("open executor config pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		barrierR.Close()
		return 0, fmt.Errorf("start executor: %w", err)
	}
	barrierR.Close()

	ec := execConfig{
		SandboxID:   ic.Judge.SandboxID,
		TimeLimitMS: ic.Judge.TimeLimitMS,
		Stdin:       ic.Judge.Stdin,
		Cmdline:     ic.Judge.Cmdline,
		Filter:      ic.Filter,
	}
	if err := writeExecConfig(stdin, &ec); err != nil {
		stdin.Close()
		killWait(cmd)
		return 0, fmt.Errorf("send config to executor: %w", err)
	}
	stdin.Close()

	if err := cg.addProcess(cmd.Process.Pid); err != nil {
		killWait(cmd)
		return 0, fmt.Errorf("place executor in cgroup: %w", err)
	}
	if _, err := barrierW.Write([]byte{'1'}); err != nil {
		killWait(cmd)
		return 0, fmt.Errorf("release executor: %w", err)
	}
	return waitExitCode(cmd), nil
}

func writeInputFiles(dir string, files []model.InputFile) error {
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Content, os.FileMode(f.Mode)); err != nil {
			return fmt.Errorf("write input file %s: %w", f.Name, err)
		}
	}
	return nil
}

// readScratch reads a captured file from the scratch directory. A file
// the target never produced reads as empty.
func readScratch(dir, name string) []byte {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil
	}
	return b
}

// newRoleLogger builds the in-sandbox diagnostics logger. Output goes
// to the inherited stderr so the result frame on stdout stays clean;
// without the debug bit the role stays silent.
func newRoleLogger(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	conf := zap.NewDevelopmentConfig()
	conf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := conf.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
