package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/theoj/go-judger/model"
)

// Options configure one run beyond the request itself.
type Options struct {
	// Logger receives supervisor diagnostics. Nil means silent.
	Logger *zap.Logger
	// Debug forwards development logging into the init stage.
	Debug bool
	// ExtraMounts are applied inside the sandbox root after the rootfs
	// bind and the scratch tmpfs.
	ExtraMounts []MountSpec
	// Filter is installed on the target right before exec. Nil leaves
	// the syscall surface open.
	Filter []unix.SockFilter
}

// Run executes one judging request and returns its result. A non-nil
// error means the sandbox itself broke; the result is then the
// corresponding internal-error response, ready to be sent as-is.
func Run(cfg model.Config, opt Options) (model.Result, error) {
	res, err := supervise(&cfg, &opt)
	if err != nil {
		return model.InternalError(err), err
	}
	return res, nil
}

// supervise runs the init stage and speaks its frame protocol: one
// config frame down, one result frame back. The result is read before
// the wait so a response larger than the pipe buffer cannot wedge the
// init behind a full pipe.
func supervise(cfg *model.Config, opt *Options) (model.Result, error) {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cmd := exec.Command(selfExe, RoleInit)
	cmd.SysProcAttr = initSysProcAttr()
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return model.Result{}, fmt.Errorf("open config pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.Result{}, fmt.Errorf("open result pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return model.Result{}, fmt.Errorf("start sandbox init: %w", err)
	}
	logger.Debug("sandbox init started", zap.Int("pid", cmd.Process.Pid))

	ic := initConfig{
		Judge:  *cfg,
		Debug:  opt.Debug,
		Mounts: opt.ExtraMounts,
		Filter: opt.Filter,
	}
	if err := writeInitConfig(stdin, &ic); err != nil {
		stdin.Close()
		killWait(cmd)
		return model.Result{}, fmt.Errorf("send config to sandbox init: %w", err)
	}
	stdin.Close()

	res, rerr := model.ReadResult(stdout)
	werr := cmd.Wait()
	if rerr != nil {
		if werr != nil {
			return model.Result{}, fmt.Errorf("sandbox init aborted: %v", werr)
		}
		return model.Result{}, fmt.Errorf("read result: %w", rerr)
	}
	if werr != nil {
		// The frame arrived whole, so keep the verdict and only note
		// the unclean exit.
		logger.Warn("sandbox init exited uncleanly", zap.Error(werr))
	}
	return res, nil
}
