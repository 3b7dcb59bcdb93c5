package sched

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
)

func TestRenderScriptFullHeader(t *testing.T) {
	d := Directives{
		JobName:   "transit search",
		Nodes:     8,
		Time:      "48:00:00",
		Mem:       "120G",
		Partition: "compute",
		Output:    "/runs/run-1/slurm-%j.out",
		MailTypes: []string{"BEGIN", "END", "FAIL"},
		MailUser:  "astro@example.org",
	}

	script, err := RenderScript(d, "poolpilot run --config /etc/poolpilot.yaml")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	assert.Contains(t, script, "#SBATCH --job-name transit-search\n")
	assert.Contains(t, script, "#SBATCH --nodes 8\n")
	assert.Contains(t, script, "#SBATCH --time 48:00:00\n")
	assert.Contains(t, script, "#SBATCH --mem 120G\n")
	assert.Contains(t, script, "#SBATCH --partition compute\n")
	assert.Contains(t, script, "#SBATCH --output /runs/run-1/slurm-%j.out\n")
	assert.Contains(t, script, "#SBATCH --mail-type BEGIN,END,FAIL\n")
	assert.Contains(t, script, "#SBATCH --mail-user astro@example.org\n")
	assert.True(t, strings.HasSuffix(script, "poolpilot run --config /etc/poolpilot.yaml\n"))
}

func TestRenderScriptOmitsEmptyDirectives(t *testing.T) {
	d := Directives{JobName: "j", Nodes: 1, Time: "1:00:00"}

	script, err := RenderScript(d, "true")
	require.NoError(t, err)

	assert.NotContains(t, script, "--mem")
	assert.NotContains(t, script, "--partition")
	assert.NotContains(t, script, "--output")
	assert.NotContains(t, script, "--mail-type")
	assert.NotContains(t, script, "--mail-user")
}

func TestRenderScriptOmitsMailUserWithoutMailTypes(t *testing.T) {
	d := Directives{JobName: "j", Nodes: 1, Time: "1:00:00", MailUser: "x@y.z"}

	script, err := RenderScript(d, "true")
	require.NoError(t, err)
	assert.NotContains(t, script, "--mail-user")
}

func TestFromConfigNormalizesMailTypes(t *testing.T) {
	cfg := config.SchedulerConfig{
		JobName:  "search",
		Nodes:    4,
		Time:     "2:00:00",
		MailType: []string{"begin", "bogus", "FAIL"},
		MailUser: "u@example.org",
	}
	d := FromConfig(cfg, "/out")
	assert.Equal(t, []string{"BEGIN", "FAIL"}, d.MailTypes)
	assert.Equal(t, "/out", d.Output)
}

func TestSanitizeJobName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"transit-search", "transit-search"},
		{"transit search #42", "transit-search-42"},
		{"café run", "cafe-run"},
		{"Göttingen_batch", "Gottingen_batch"},
		{"a//b\\c", "a-b-c"},
		{"---", FallbackJobName},
		{"", FallbackJobName},
		{"dots.and_underscores-ok", "dots.and_underscores-ok"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SanitizeJobName(c.in), "input %q", c.in)
	}
}

func TestSanitizeJobNameCapsLength(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := SanitizeJobName(long)
	assert.Len(t, got, maxJobNameLen)
}

func TestParseJobID(t *testing.T) {
	id, ok := ParseJobID("Submitted batch job 4817392")
	require.True(t, ok)
	assert.Equal(t, "4817392", id)

	_, ok = ParseJobID("sbatch: error: invalid partition")
	assert.False(t, ok)
}

func TestSubmitParsesAcknowledgement(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "sbatch")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"Submitted batch job 12345\"\n"), 0o755))
	script := filepath.Join(dir, "submit.sbatch")
	require.NoError(t, WriteScript(script, "#!/bin/bash\ntrue\n"))

	sub, err := Submit(t.Context(), bin, script)
	require.NoError(t, err)
	assert.Equal(t, "12345", sub.JobID)
}

func TestSubmitFailureIsSchedulerError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "sbatch")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"sbatch: error: rejected\" >&2\nexit 1\n"), 0o755))

	_, err := Submit(t.Context(), bin, filepath.Join(dir, "script"))
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryScheduler))
}

func TestSubmitUnparseableOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "sbatch")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"queued maybe\"\n"), 0o755))

	_, err := Submit(t.Context(), bin, filepath.Join(dir, "script"))
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryScheduler))
}

func TestReadJobEnv(t *testing.T) {
	t.Setenv(EnvJobID, "991")
	t.Setenv(EnvJobName, "transit-search")
	t.Setenv(EnvNodeList, "node[01-08]")

	e := ReadJobEnv()
	assert.Equal(t, "991", e.JobID)
	assert.Equal(t, "transit-search", e.JobName)
	assert.Equal(t, "node[01-08]", e.NodeList)
	assert.True(t, e.InAllocation())
}

func TestReadJobEnvOutsideAllocation(t *testing.T) {
	t.Setenv(EnvJobID, "")
	e := ReadJobEnv()
	assert.False(t, e.InAllocation())
}
