package reply

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/michaelbrown/artoo/internal/sandbox"
)

func TestResult(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		res    sandbox.Result
		want   string
	}{
		{
			name: "inline exit",
			res:  sandbox.Result{Stdout: "hi\n", Stderr: "", Status: sandbox.Exited(0)},
			want: "<@luke> [Beep, Beep, Bleep!]\nstdout: hi\n\nstderr: \nreturn code: 0",
		},
		{
			name:   "file sourced",
			origin: "https://files.slack.com/x/main.py",
			res:    sandbox.Result{Stdout: "", Stderr: "boom", Status: sandbox.Exited(1)},
			want:   "<@luke> [Beep, Beep, Bleep!]\nFile: https://files.slack.com/x/main.py\nstdout: \nstderr: boom\nreturn code: 1",
		},
		{
			name: "timed out",
			res:  sandbox.Result{Stdout: "partial", Status: sandbox.TimedOut(300 * time.Second)},
			want: "<@luke> [Beep, Beep, Bleep!]\nstdout: partial\nstderr: \nreturn code: Artoo halted execution after 300 seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Result("<@luke>", tt.origin, tt.res)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Result("<@luke>", tt.origin, tt.res), "rendering must be deterministic")
		})
	}
}

func TestResultOriginLineOnlyForFiles(t *testing.T) {
	res := sandbox.Result{Status: sandbox.Exited(0)}
	assert.NotContains(t, Result("<@leia>", "", res), "File:")
	assert.Contains(t, Result("<@leia>", "https://files.slack.com/a", res), "\nFile: https://files.slack.com/a\n")
}

func TestHelp(t *testing.T) {
	got := Help("artoo", "<@han>", []string{"python", "bash"})
	want := "<@han> [Electronic Trilling]\n" +
		"--Please provide a command as--\n" +
		"@artoo python\n" +
		"```\n[CODE]\n```\n" +
		"--or--\n" +
		"Comment '@artoo python' on a code snippet.\n" +
		"--instructions--\n" +
		"bash, python"
	assert.Equal(t, want, got)
}

func TestHelpOrderIndependent(t *testing.T) {
	in := []string{"ruby", "bash"}
	a := Help("artoo", "<@han>", in)
	b := Help("artoo", "<@han>", []string{"bash", "ruby"})
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"ruby", "bash"}, in, "input must not be reordered")
	assert.Contains(t, a, "@artoo bash\n", "falls back to the first instruction as the example")
}

func TestHelpWithoutInstructions(t *testing.T) {
	got := Help("artoo", "", nil)
	assert.False(t, strings.Contains(got, "--instructions--"))
	assert.True(t, strings.HasPrefix(got, " [Electronic Trilling]"))
}

func TestFailure(t *testing.T) {
	assert.Equal(t,
		"<@han> [Sad Whistle]\nArtoo could not start the python interpreter. Please let an operator know.",
		Failure("<@han>", "python"))
}
