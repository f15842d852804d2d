package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/method"
)

// TestHelperProcess is not a real test: it is re-exec'd as the worker
// subprocess by testSpawn, the same idiom os/exec's own tests use to drive
// a subprocess from inside "go test" without a separate binary. It only
// does anything when GO_WANT_HELPER_PROCESS is set; otherwise it's a no-op
// so a normal `go test` run doesn't try to execute it as a real test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	defer os.Exit(0)

	req, err := ReadRequest(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	def := testMethodDefinition()

	resolveDataset := func(locator string) (interface{}, error) { return locator, nil }
	resolveJob := func(jobID string) (interface{}, error) { return jobID, nil }

	msgOut := os.NewFile(3, "msg")

	if err := RunWorker(context.Background(), def, resolveDataset, resolveJob, req, os.Stdout, msgOut); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// testSpawn re-invokes the test binary itself with -test.run pinned to
// TestHelperProcess, exactly as the stdlib's os/exec tests do, so the
// Launcher drives a genuine separate OS process without needing a
// compiled worker binary on disk.
func testSpawn(req WorkerRequest) (*exec.Cmd, error) {
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess") //nolint:gosec
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")

	return cmd, nil
}

// testMethodDefinition is shared by the test goroutine (for registry
// lookup) and the re-exec'd helper process (for phase dispatch): the
// scenario driving each phase's behaviour travels through req.Options,
// since that's the only state that actually crosses the fork-exec
// boundary.
func testMethodDefinition() *method.Definition {
	return &method.Definition{
		Name: "probe",
		Prepare: func(ctx context.Context, p method.Params) (method.Result, error) {
			if p.Options["prepare_finish_early"] == true {
				return method.Result{Value: "prepared", FinishEarly: true}, nil
			}

			return method.Result{Value: "prepared"}, nil
		},
		Analysis: func(ctx context.Context, p method.Params) (method.Result, error) {
			scenario, _ := p.Options["scenario"].(string)

			switch scenario {
			case "fail":
				if p.SliceNo == 1 {
					return method.Result{}, fmt.Errorf("slice %d exploded", p.SliceNo)
				}

				time.Sleep(50 * time.Millisecond)

				return method.Result{Value: p.SliceNo}, nil
			case "finish_early":
				return method.Result{Value: p.SliceNo, FinishEarly: true}, nil
			case "disagree":
				return method.Result{Value: p.SliceNo, FinishEarly: p.SliceNo == 0}, nil
			default:
				return method.Result{Value: p.SliceNo}, nil
			}
		},
		Synthesis: func(ctx context.Context, p method.Params) (method.Result, error) {
			return method.Result{Value: "done"}, nil
		},
	}
}

func newTestLauncher() *Launcher {
	registry := method.NewRegistry()
	registry.Register(testMethodDefinition())

	return New(registry, testSpawn)
}

func mustJobDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "OUTPUT"), 0o755); err != nil {
		t.Fatal(err)
	}

	return dir
}

func TestLauncherRunHappyPath(t *testing.T) {
	Convey("Run drives prepare, then analysis, then synthesis and aggregates timings", t, func() {
		l := newTestLauncher()
		jobDir := mustJobDir(t)

		outcome, err := l.Run(context.Background(), Job{
			ID:      "probe-1",
			Path:    jobDir,
			Method:  "probe",
			Slices:  3,
			Options: map[string]interface{}{},
		}, 2, NewStatus())

		So(err, ShouldBeNil)
		So(outcome.Result, ShouldEqual, "done")
		So(outcome.PerSlice, ShouldHaveLength, 3)
		So(outcome.Prepare, ShouldBeGreaterThan, 0)
		So(outcome.Synthesis, ShouldBeGreaterThan, 0)
	})
}

func TestLauncherRunPrepareFinishEarly(t *testing.T) {
	Convey("a finish-early prepare phase skips analysis and synthesis entirely", t, func() {
		l := newTestLauncher()
		jobDir := mustJobDir(t)

		outcome, err := l.Run(context.Background(), Job{
			ID:      "probe-2",
			Path:    jobDir,
			Method:  "probe",
			Slices:  3,
			Options: map[string]interface{}{"prepare_finish_early": true},
		}, 2, NewStatus())

		So(err, ShouldBeNil)
		So(outcome.Result, ShouldEqual, "prepared")
		So(outcome.Analysis, ShouldEqual, time.Duration(0))
		So(outcome.Synthesis, ShouldEqual, time.Duration(0))
	})
}

func TestLauncherRunAnalysisFinishEarly(t *testing.T) {
	Convey("every analysis slice agreeing to finish early skips synthesis", t, func() {
		l := newTestLauncher()
		jobDir := mustJobDir(t)

		outcome, err := l.Run(context.Background(), Job{
			ID:      "probe-3",
			Path:    jobDir,
			Method:  "probe",
			Slices:  3,
			Options: map[string]interface{}{"scenario": "finish_early"},
		}, 3, NewStatus())

		So(err, ShouldBeNil)
		So(outcome.Synthesis, ShouldEqual, time.Duration(0))
	})
}

func TestLauncherRunAnalysisDisagreement(t *testing.T) {
	Convey("analysis slices disagreeing on finish-early is a fatal error", t, func() {
		l := newTestLauncher()
		jobDir := mustJobDir(t)

		_, err := l.Run(context.Background(), Job{
			ID:      "probe-4",
			Path:    jobDir,
			Method:  "probe",
			Slices:  3,
			Options: map[string]interface{}{"scenario": "disagree"},
		}, 3, NewStatus())

		So(err, ShouldNotBeNil)
	})
}

func TestLauncherRunAnalysisFailure(t *testing.T) {
	Convey("a failing analysis slice fails the whole job", t, func() {
		l := newTestLauncher()
		jobDir := mustJobDir(t)

		_, err := l.Run(context.Background(), Job{
			ID:      "probe-5",
			Path:    jobDir,
			Method:  "probe",
			Slices:  3,
			Options: map[string]interface{}{"scenario": "fail"},
		}, 3, NewStatus())

		So(err, ShouldNotBeNil)
	})
}

func TestLauncherRunUnknownMethod(t *testing.T) {
	Convey("Run rejects a job for an unregistered method", t, func() {
		l := newTestLauncher()
		jobDir := mustJobDir(t)

		_, err := l.Run(context.Background(), Job{
			ID:     "probe-6",
			Path:   jobDir,
			Method: "no_such_method",
			Slices: 1,
		}, 1, NewStatus())

		So(err, ShouldEqual, method.ErrUnknownMethod)
	})
}
