// Command go-judger-shell runs one command through a go-judger binary
// and prints the verdict, the measurements and the captured streams.
// The command comes from the positional arguments, or from -c as a
// shell-style string. Judger settings pass through the environment,
// e.g. GJ_SILENT=1.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/theoj/go-judger/client"
	"github.com/theoj/go-judger/model"
)

var (
	judgerPath = flag.String("judger", client.DefaultPath, "judger binary path")
	cmdString  = flag.String("c", "", "command line as one shell-style string")
	timeLimit  = flag.Uint("time", 1000, "time limit in milliseconds")
	memLimit   = flag.Int64("memory", 256, "memory limit in megabytes")
	pidsLimit  = flag.Uint("pids", 64, "process count limit")
	rootfs     = flag.String("rootfs", "/", "rootfs image directory")
	tmpfsSize  = flag.String("tmpfs", "64m", "scratch tmpfs size")
	cgroupRoot = flag.String("cgroup", "", "writable cgroup v2 directory (empty relies on the judger's -prepare-cgroup)")
	sandboxID  = flag.String("id", "", "sandbox id (default derived from pid)")
	stdinText  = flag.String("stdin", "", "stdin payload")
	copyIn     = flag.String("in", "", "comma separated files staged into the scratch directory")
	copyOut    = flag.String("out", "", "comma separated output file names read back after the run")
)

func main() {
	flag.Parse()
	args, err := commandLine()
	if err != nil {
		log.Fatalln("parse command", err)
	}
	cfg := model.Config{
		TimeLimitMS:   uint32(*timeLimit),
		MemoryLimitMB: *memLimit,
		PidsLimit:     uint32(*pidsLimit),
		Rootfs:        *rootfs,
		TmpfsSize:     *tmpfsSize,
		CgroupRoot:    *cgroupRoot,
		SandboxID:     *sandboxID,
		Stdin:         []byte(*stdinText),
		Cmdline:       args,
		OutputNames:   splitList(*copyOut),
	}
	if cfg.SandboxID == "" {
		cfg.SandboxID = fmt.Sprintf("shell%d", os.Getpid())
	}
	for _, name := range splitList(*copyIn) {
		f, err := loadInputFile(name)
		if err != nil {
			log.Fatalln("stage input", err)
		}
		cfg.InputFiles = append(cfg.InputFiles, f)
	}
	var judgerArgs []string
	if *cgroupRoot == "" {
		judgerArgs = append(judgerArgs, "-prepare-cgroup")
	}

	c := &client.Client{Path: *judgerPath, Args: judgerArgs}
	res, err := c.Run(context.Background(), &cfg)
	if err != nil {
		log.Fatalln("judger", err)
	}
	report(&res)
}

func commandLine() ([]string, error) {
	if *cmdString != "" {
		return shlex.Split(*cmdString)
	}
	if args := flag.Args(); len(args) > 0 {
		return args, nil
	}
	return []string{"/bin/sh"}, nil
}

func loadInputFile(name string) (model.InputFile, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return model.InputFile{}, err
	}
	info, err := os.Stat(name)
	if err != nil {
		return model.InputFile{}, err
	}
	return model.InputFile{
		Name:    filepath.Base(name),
		Content: b,
		Mode:    uint32(info.Mode().Perm()),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func report(res *model.Result) {
	fmt.Printf("verdict: %s\ntime: %d ms\nmemory: %d mb\n", res.Verdict, res.TimeMS, res.MemoryMB)
	if len(res.Stdout) > 0 {
		fmt.Printf("--- stdout (%d bytes) ---\n%s", len(res.Stdout), res.Stdout)
	}
	if len(res.Stderr) > 0 {
		fmt.Printf("--- stderr (%d bytes) ---\n%s", len(res.Stderr), res.Stderr)
	}
	for _, out := range res.Outputs {
		if err := os.WriteFile(out.Name, out.Content, 0o644); err != nil {
			log.Println("save output", err)
			continue
		}
		fmt.Printf("saved %s (%d bytes)\n", out.Name, len(out.Content))
	}
}
