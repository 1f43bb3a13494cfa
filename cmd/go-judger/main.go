// Command go-judger runs one untrusted program inside a namespaced,
// cgroup limited sandbox and reports the judging verdict. It reads a
// single binary request frame from stdin and writes a single response
// frame to stdout; diagnostics go to stderr.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theoj/go-judger/cmd/go-judger/config"
	"github.com/theoj/go-judger/cmd/go-judger/version"
	"github.com/theoj/go-judger/model"
	"github.com/theoj/go-judger/sandbox"
)

var logger *zap.Logger

func main() {
	// The sandbox stages re-execute this binary with a role argument;
	// dispatch them before any flag or config handling.
	if code, ok := runRole(); ok {
		os.Exit(code)
	}
	conf := loadConf()
	if conf.Version {
		fmt.Println(version.Version)
		return
	}
	initLogger(conf)
	defer logger.Sync()
	if ce := logger.Check(zap.InfoLevel, "Config loaded"); ce != nil {
		ce.Write(zap.String("config", fmt.Sprintf("%+v", conf)))
	}

	// A caller that closes the response pipe early must not take the
	// judger down before the sandbox is torn back out of the host.
	signal.Ignore(syscall.SIGPIPE)

	res, ok := judge(conf)
	if err := model.WriteResult(os.Stdout, &res); err != nil {
		logger.Error("write response", zap.Error(err))
		ok = false
	}
	logger.Sync()
	if !ok {
		os.Exit(1)
	}
}

func runRole() (int, bool) {
	if len(os.Args) != 2 {
		return 0, false
	}
	switch os.Args[1] {
	case sandbox.RoleInit:
		return sandbox.RunInit(), true
	case sandbox.RoleExec:
		return sandbox.RunExecutor(), true
	case sandbox.RoleTarget:
		return sandbox.RunTarget(), true
	}
	return 0, false
}

// judge performs one request/response cycle. The returned response is
// always valid to emit; ok reports whether judging ran to completion.
func judge(conf *config.Config) (res model.Result, ok bool) {
	fail := func(err error, msg string) (model.Result, bool) {
		logger.Error(msg, zap.Error(err))
		return model.InternalError(err), false
	}
	filter, err := sandbox.ReadSeccompConf(conf.SeccompConf)
	if err != nil {
		return fail(err, "load seccomp config")
	}
	if filter != nil {
		logger.Info("Loaded seccomp filter", zap.String("conf", conf.SeccompConf), zap.Int("instructions", len(filter)))
	}
	mounts, err := sandbox.ReadMountConfig(conf.MountConf)
	if err != nil {
		return fail(err, "load mount config")
	}
	if mounts != nil {
		logger.Info("Loaded extra mounts", zap.String("conf", conf.MountConf), zap.Int("count", len(mounts)))
	}
	var preparedRoot string
	if conf.PrepareCgroup {
		if preparedRoot, err = sandbox.PrepareCgroupRoot(logger); err != nil {
			return fail(err, "prepare cgroup root")
		}
	}

	cfg, err := model.ReadConfig(os.Stdin)
	if err != nil {
		return fail(err, "read request")
	}
	if err := cfg.Validate(); err != nil {
		return fail(err, "invalid request")
	}
	if cfg.CgroupRoot == "" {
		cfg.CgroupRoot = preparedRoot
	}
	if ce := logger.Check(zap.InfoLevel, "Request loaded"); ce != nil {
		ce.Write(zap.String("sandboxId", cfg.SandboxID),
			zap.Uint32("timeLimitMs", cfg.TimeLimitMS),
			zap.Int64("memoryLimitMb", cfg.MemoryLimitMB),
			zap.Uint32("pidsLimit", cfg.PidsLimit),
			zap.Strings("cmdline", cfg.Cmdline))
	}
	if conf.SweepStale {
		sandbox.SweepStale(cfg.CgroupRoot, conf.SweepAge, logger)
	}

	res, err = sandbox.Run(cfg, sandbox.Options{
		Logger:      logger,
		Debug:       conf.EnableDebug,
		ExtraMounts: mounts,
		Filter:      filter,
	})
	if err != nil {
		logger.Error("judging failed", zap.Error(err))
		return res, false
	}
	logger.Info("Judging finished",
		zap.Stringer("verdict", res.Verdict),
		zap.Uint32("timeMs", res.TimeMS),
		zap.Int64("memoryMb", res.MemoryMB))
	return res, true
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	return &conf
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !conf.EnableDebug {
			config.Level.SetLevel(zap.InfoLevel)
		}
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}
