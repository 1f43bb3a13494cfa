package sandbox

import "github.com/theoj/go-judger/model"

// Exit statuses of the executor process. The init folds them into the
// verdict; anything outside this set means the executor itself broke.
const (
	statusOK       = 0 // target exited zero
	statusError    = 1 // target exited non-zero, or executor setup failed
	statusTimeout  = 2 // target was still running at the deadline
	statusSignaled = 3 // target died on a signal
)

// usage holds the counters harvested from the run's control group.
type usage struct {
	TimeMS    uint32 // cpu.stat user_usec truncated to milliseconds
	PeakBytes int64  // memory.peak high-water mark, 0 when unsupported
	OOMKills  int64  // memory.events oom_kill
}

// deriveVerdict folds the executor exit status and the control group
// counters into the final verdict. The status seeds it, then an OOM
// kill outranks everything and over-budget user time outranks the
// status, so a run killed by the memory controller reports MLE even
// when the kill also made it miss the deadline.
func deriveVerdict(exitStatus int, u usage, timeLimitMS uint32) model.Verdict {
	v := model.VerdictUKE
	switch exitStatus {
	case statusOK:
		v = model.VerdictOK
	case statusError:
		v = model.VerdictRE
	case statusTimeout:
		v = model.VerdictTLE
	}
	switch {
	case u.OOMKills > 0:
		v = model.VerdictMLE
	case u.TimeMS > timeLimitMS:
		v = model.VerdictTLE
	}
	return v
}
