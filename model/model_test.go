package model

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestVerdictString(t *testing.T) {
	cases := []struct {
		v    Verdict
		want string
	}{
		{VerdictOK, "OK"},
		{VerdictTLE, "TLE"},
		{VerdictMLE, "MLE"},
		{VerdictRE, "RE"},
		{VerdictUKE, "UKE"},
		{Verdict(42), "UKE"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("Verdict(%d).String() = %q, want %q", uint32(c.v), got, c.want)
		}
	}
}

func TestVerdictFromCode(t *testing.T) {
	if got := VerdictFromCode(3); got != VerdictRE {
		t.Errorf("VerdictFromCode(3) = %v, want RE", got)
	}
	if got := VerdictFromCode(9); got != VerdictUKE {
		t.Errorf("VerdictFromCode(9) = %v, want UKE", got)
	}
}

func sampleConfig() Config {
	return Config{
		TimeLimitMS:   1000,
		MemoryLimitMB: 64,
		PidsLimit:     8,
		Rootfs:        "/srv/rootfs",
		TmpfsSize:     "64M",
		CgroupRoot:    "/sys/fs/cgroup/judge",
		SandboxID:     "t42",
		Stdin:         []byte("name\n"),
		Cmdline:       []string{"/bin/cat", "data.txt"},
		InputFiles: []InputFile{
			{Name: "data.txt", Content: []byte("abc"), Mode: 0o644},
		},
		OutputNames: []string{"out.txt"},
	}
}

func TestConfigRoundTrip(t *testing.T) {
	in := sampleConfig()
	var buf bytes.Buffer
	if err := WriteConfig(&buf, &in); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	got, err := ReadConfig(&buf)
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
	if buf.Len() != 0 {
		t.Errorf("%d trailing bytes after frame", buf.Len())
	}
}

// The frame layout is shared with non-Go callers, so the exact byte
// sequence is part of the contract.
func TestConfigFrameLayout(t *testing.T) {
	in := Config{
		TimeLimitMS:   1000,
		MemoryLimitMB: 64,
		PidsLimit:     8,
		Rootfs:        "/r",
		TmpfsSize:     "8M",
		CgroupRoot:    "/c",
		SandboxID:     "s1",
		Stdin:         []byte("in"),
		Cmdline:       []string{"/bin/true"},
	}
	var buf bytes.Buffer
	if err := WriteConfig(&buf, &in); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	want := []byte{
		0xe8, 0x03, 0x00, 0x00, // time limit 1000
		0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // memory limit 64
		0x08, 0x00, 0x00, 0x00, // pids limit 8
		0x02, 0x00, 0x00, 0x00, '/', 'r',
		0x02, 0x00, 0x00, 0x00, '8', 'M',
		0x02, 0x00, 0x00, 0x00, '/', 'c',
		0x02, 0x00, 0x00, 0x00, 's', '1',
		0x02, 0x00, 0x00, 0x00, 'i', 'n',
		0x01, 0x00, 0x00, 0x00, // cmdline count
		0x09, 0x00, 0x00, 0x00, '/', 'b', 'i', 'n', '/', 't', 'r', 'u', 'e',
		0x00, 0x00, 0x00, 0x00, // input file count
		0x00, 0x00, 0x00, 0x00, // output name count
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("frame bytes mismatch:\n got % x\nwant % x", buf.Bytes(), want)
	}
}

func TestReadConfigTruncated(t *testing.T) {
	in := sampleConfig()
	var buf bytes.Buffer
	if err := WriteConfig(&buf, &in); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	frame := buf.Bytes()
	for cut := 0; cut < len(frame); cut++ {
		if _, err := ReadConfig(bytes.NewReader(frame[:cut])); err == nil {
			t.Fatalf("ReadConfig accepted a frame truncated to %d of %d bytes", cut, len(frame))
		}
	}
}

func TestResultRoundTrip(t *testing.T) {
	in := Result{
		Verdict:  VerdictTLE,
		TimeMS:   1503,
		MemoryMB: 12,
		Stdout:   []byte("partial"),
		Stderr:   []byte("killed"),
		Outputs: []OutputFile{
			{Name: "out.txt", Content: []byte("x")},
		},
	}
	var buf bytes.Buffer
	if err := WriteResult(&buf, &in); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	got, err := ReadResult(&buf)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestReadResultUnknownVerdict(t *testing.T) {
	in := Result{Verdict: Verdict(7)}
	var buf bytes.Buffer
	if err := WriteResult(&buf, &in); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	got, err := ReadResult(&buf)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}
	if got.Verdict != VerdictUKE {
		t.Errorf("verdict = %v, want UKE", got.Verdict)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"emptyID", func(c *Config) { c.SandboxID = "" }, true},
		{"pathID", func(c *Config) { c.SandboxID = "../escape" }, true},
		{"emptyCmdline", func(c *Config) { c.Cmdline = nil }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := sampleConfig()
			tc.mutate(&c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestInternalError(t *testing.T) {
	res := InternalError(bytes.ErrTooLarge)
	if res.Verdict != VerdictUKE {
		t.Errorf("verdict = %v, want UKE", res.Verdict)
	}
	if !strings.HasPrefix(string(res.Stderr), InternalErrorPrefix) {
		t.Errorf("stderr %q lacks %q prefix", res.Stderr, InternalErrorPrefix)
	}
}
