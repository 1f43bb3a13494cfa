package model

// Verdict classifies the outcome of one judged run.
type Verdict uint32

const (
	VerdictOK  Verdict = iota // exited 0 within limits
	VerdictTLE                // time limit exceeded
	VerdictMLE                // memory limit exceeded
	VerdictRE                 // runtime error
	VerdictUKE                // unknown or internal error
)

var verdictString = []string{
	"OK",
	"TLE",
	"MLE",
	"RE",
	"UKE",
}

func (v Verdict) String() string {
	if int(v) < len(verdictString) {
		return verdictString[v]
	}
	return verdictString[VerdictUKE]
}

// VerdictFromCode maps a wire code to a Verdict. Codes outside the
// defined range collapse to UKE rather than leaking raw numbers to
// callers.
func VerdictFromCode(c uint32) Verdict {
	if c <= uint32(VerdictUKE) {
		return Verdict(c)
	}
	return VerdictUKE
}
