package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/app"
)

func testLoader(loaded *int) Loader {
	return func(name string, opts ...app.Option) (*app.App, error) {
		if loaded != nil {
			*loaded++
		}
		return app.BuiltinCatalog().Load(name, app.DefaultConfig(), opts...)
	}
}

func execute(t *testing.T, load Loader, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("1.2.3", load)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// --- Root Tests ---

func TestRoot_Version(t *testing.T) {
	for _, flag := range []string{"-V", "--version"} {
		out, _, err := execute(t, testLoader(nil), flag)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", flag, err)
		}
		if out != "1.2.3\n" {
			t.Errorf("%s: expected version line, got %q", flag, out)
		}
	}
}

func TestRoot_UnknownFlagIsUsageError(t *testing.T) {
	_, _, err := execute(t, testLoader(nil), "worker", "courier", "--bogus")
	if ExitCode(err) != ExitUsage {
		t.Errorf("expected exit code 2, got %d (%v)", ExitCode(err), err)
	}
}

// --- Worker Tests ---

func TestWorker_InvalidConcurrency(t *testing.T) {
	loaded := 0

	for _, c := range []string{"0", "-3"} {
		_, _, err := execute(t, testLoader(&loaded), "worker", "courier", "-c", c)
		if ExitCode(err) != ExitUsage {
			t.Errorf("-c %s: expected exit code 2, got %d (%v)", c, ExitCode(err), err)
		}
		if err == nil || !strings.Contains(err.Error(), "concurrency") {
			t.Errorf("-c %s: error should mention concurrency: %v", c, err)
		}
	}

	if loaded != 0 {
		t.Error("app should not be loaded when arguments are invalid")
	}
}

func TestWorker_InvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, testLoader(nil), "worker", "courier", "-l", "VERBOSE")
	if ExitCode(err) != ExitUsage {
		t.Errorf("expected exit code 2, got %d (%v)", ExitCode(err), err)
	}
}

func TestWorker_MissingApp(t *testing.T) {
	_, _, err := execute(t, testLoader(nil), "worker")
	if ExitCode(err) != ExitUsage {
		t.Errorf("expected exit code 2, got %d (%v)", ExitCode(err), err)
	}
}

func TestWorkerFlags_Defaults(t *testing.T) {
	cmd := NewWorkerCmd(testLoader(nil))

	c, _ := cmd.Flags().GetInt("concurrency")
	if c != 10000 {
		t.Errorf("expected default concurrency 10000, got %d", c)
	}
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr != ":8082" {
		t.Errorf("expected default metrics addr :8082, got %s", addr)
	}
	if cmd.Flags().ShorthandLookup("Q") == nil || cmd.Flags().ShorthandLookup("l") == nil {
		t.Error("expected -Q and -l shorthands")
	}
}

// --- Tasks Tests ---

func TestTasks_Table(t *testing.T) {
	out, _, err := execute(t, testLoader(nil), "tasks", "courier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"TASK", "echo", "http.request", "math.add", "delay"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %q in output:\n%s", name, out)
		}
	}
}

func TestTasks_JSON(t *testing.T) {
	out, _, err := execute(t, testLoader(nil), "tasks", "courier", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("output should be JSON: %v\n%s", err, out)
	}
	if len(names) != 4 {
		t.Errorf("expected 4 builtin tasks, got %v", names)
	}
}

func TestTasks_UnknownApp(t *testing.T) {
	_, _, err := execute(t, testLoader(nil), "tasks", "proj")
	if !errors.Is(err, app.ErrUnknownApp) {
		t.Errorf("expected ErrUnknownApp, got %v", err)
	}
	if ExitCode(err) != ExitFailure {
		t.Errorf("expected exit code 1, got %d", ExitCode(err))
	}
}

// --- Send Tests ---

func parseSend(t *testing.T, args ...string) (sendFlags, *cobra.Command) {
	t.Helper()
	var f sendFlags
	cmd := NewSendCmd(testLoader(nil))
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	f.args, _ = cmd.Flags().GetString("args")
	f.kwargs, _ = cmd.Flags().GetString("kwargs")
	f.queue, _ = cmd.Flags().GetString("queue")
	f.priority, _ = cmd.Flags().GetInt("priority")
	f.countdown, _ = cmd.Flags().GetFloat64("countdown")
	f.maxRetries, _ = cmd.Flags().GetInt("max-retries")
	f.then, _ = cmd.Flags().GetStringArray("then")
	return f, cmd
}

func TestSendSignature_Single(t *testing.T) {
	f, cmd := parseSend(t,
		"--args", "[2, 2]",
		"--kwargs", `{"x": 1}`,
		"-Q", "math",
		"--priority", "5",
		"--max-retries", "0",
	)

	sig, err := f.signature(cmd, "math.add")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sig.IsChain() {
		t.Error("expected single signature")
	}
	if sig.TaskName() != "math.add" || len(sig.Args()) != 2 || sig.Kwargs()["x"] != 1.0 {
		t.Errorf("unexpected signature: %s %v %v", sig.TaskName(), sig.Args(), sig.Kwargs())
	}

	opts := sig.Options()
	if opts.Queue != "math" {
		t.Errorf("expected queue math, got %s", opts.Queue)
	}
	if opts.Priority == nil || *opts.Priority != 5 {
		t.Errorf("expected priority 5, got %v", opts.Priority)
	}
	if opts.MaxRetries == nil || *opts.MaxRetries != 0 {
		t.Errorf("expected explicit max_retries 0, got %v", opts.MaxRetries)
	}
}

func TestSendSignature_UnsetOptionsOmitted(t *testing.T) {
	f, cmd := parseSend(t)

	sig, err := f.signature(cmd, "echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts := sig.Options()
	if opts.Priority != nil || opts.MaxRetries != nil {
		t.Errorf("unset flags should not become options: %+v", opts)
	}
}

func TestSendSignature_Chain(t *testing.T) {
	f, cmd := parseSend(t, "--args", "[1]", "--then", "math.add", "--then", "echo")

	sig, err := f.signature(cmd, "math.add")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sig.Len() != 3 {
		t.Fatalf("expected chain of 3, got %d", sig.Len())
	}
	if last := sig.Links()[2]; last.TaskName() != "echo" {
		t.Errorf("expected echo last, got %s", last.TaskName())
	}
}

func TestSendSignature_InvalidJSON(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"args not array", []string{"--args", `{"a": 1}`}},
		{"kwargs not object", []string{"--kwargs", "[1]"}},
		{"broken json", []string{"--args", "[1,"}},
		{"negative retries", []string{"--max-retries", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, cmd := parseSend(t, tt.args...)
			_, err := f.signature(cmd, "echo")
			if ExitCode(err) != ExitUsage {
				t.Errorf("expected usage error, got %v", err)
			}
		})
	}
}

func TestSend_InvalidArgsDoesNotConnect(t *testing.T) {
	loaded := 0
	_, _, err := execute(t, testLoader(&loaded), "send", "courier", "echo", "--args", "nope")
	if ExitCode(err) != ExitUsage {
		t.Errorf("expected exit code 2, got %d (%v)", ExitCode(err), err)
	}
	if loaded != 0 {
		t.Error("app should not be loaded for invalid arguments")
	}
}

// --- ExitCode Tests ---

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitOK {
		t.Error("nil error should exit 0")
	}
	if ExitCode(errors.New("boom")) != ExitFailure {
		t.Error("plain error should exit 1")
	}
	if ExitCode(usageError("bad")) != ExitUsage {
		t.Error("usage error should exit 2")
	}
}
