//go:build seccomp

package sandbox

import (
	"fmt"
	"os"

	"github.com/elastic/go-seccomp-bpf"
	"github.com/elastic/go-ucfg/yaml"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// ReadSeccompConf loads a seccomp policy file and assembles it into the
// classic BPF program installed on the target. A missing file disables
// filtering.
func ReadSeccompConf(name string) ([]unix.SockFilter, error) {
	conf, err := yaml.NewConfigWithFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var policy seccomp.Policy
	if err := conf.Unpack(&policy); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	inst, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("assemble policy: %w", err)
	}
	rawInst, err := bpf.Assemble(inst)
	if err != nil {
		return nil, fmt.Errorf("assemble instructions: %w", err)
	}
	return toSockFilter(rawInst), nil
}

func toSockFilter(raw []bpf.RawInstruction) []unix.SockFilter {
	filter := make([]unix.SockFilter, 0, len(raw))
	for _, instruction := range raw {
		filter = append(filter, unix.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return filter
}
