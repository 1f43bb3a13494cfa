package config

import (
	"os"
	"time"

	"github.com/koding/multiconfig"
)

// Config defines go-judger process configuration. The judging request
// itself arrives as a frame on stdin and is not part of this.
type Config struct {
	// sandbox environment
	MountConf   string `flagUsage:"specifies extra mount configuration file" default:"mount.yaml"`
	SeccompConf string `flagUsage:"specifies seccomp filter policy file" default:"seccomp.yaml"`

	// host hygiene
	PrepareCgroup bool          `flagUsage:"create a delegated cgroup root via systemd for requests that leave cgroup_root empty"`
	SweepStale    bool          `flagUsage:"remove stale scratch directories and cgroups left by dead judgers before running"`
	SweepAge      time.Duration `flagUsage:"minimum age before a stale entry is removed" default:"30m"`

	// logger config
	EnableDebug bool `flagUsage:"enable debug logging"`
	Release     bool `flagUsage:"release level of logs"`
	Silent      bool `flagUsage:"do not print logs"`

	// show version and exit
	Version bool `flagUsage:"show version and exit"`
}

// Load loads config from flag & environment variables
func (c *Config) Load() error {
	cl := multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{
			Prefix:    "GJ",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "GJ",
		},
	)
	if os.Getpid() == 1 {
		c.Release = true
	}
	return cl.Load(c)
}
