package w3ctest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/codegen"
	"github.com/newmassrael/reactive-state-machine-sub002/interpreter"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
	"github.com/newmassrael/reactive-state-machine-sub002/parser"
)

// Outcome is the result of one test.
type Outcome struct {
	ID       string
	Passed   bool
	Skipped  bool
	Detail   string
	Duration time.Duration
}

// Report aggregates a conformance run.
type Report struct {
	Started  time.Time
	Outcomes []Outcome
}

func (r *Report) Counts() (passed, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Passed:
			passed++
		default:
			failed++
		}
	}
	return
}

// AllPassed reports whether every non-skipped test passed.
func (r *Report) AllPassed() bool {
	_, failed, _ := r.Counts()
	return failed == 0
}

// Runner executes conformance tests. A test passes when its session enters
// a state with id "pass" before the manifest timeout.
type Runner struct {
	Logger  *slog.Logger
	Workers int

	// Compare additionally runs each test against the precomputed dispatch
	// tables the code generator emits and fails on trace divergence.
	Compare bool
}

// trace records entry/exit order; it doubles as the engine-parity witness.
type trace struct {
	mu      sync.Mutex
	steps   []string
	entered map[string]bool
	verdict chan string
}

func newTrace() *trace {
	return &trace{entered: make(map[string]bool), verdict: make(chan string, 1)}
}

func (tr *trace) StateEntered(id string) {
	tr.mu.Lock()
	tr.steps = append(tr.steps, "+"+id)
	tr.entered[id] = true
	tr.mu.Unlock()
	if id == "pass" || id == "fail" {
		select {
		case tr.verdict <- id:
		default:
		}
	}
}

func (tr *trace) StateExited(id string) {
	tr.mu.Lock()
	tr.steps = append(tr.steps, "-"+id)
	tr.mu.Unlock()
}

func (tr *trace) EventProcessed(ev *rsm.Event) {}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.steps...)
}

// Run executes the selected tests, fanning out over Workers sessions.
func (r *Runner) Run(ctx context.Context, tests []Test) (*Report, error) {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	report := &Report{Started: time.Now(), Outcomes: make([]Outcome, len(tests))}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, test := range tests {
		g.Go(func() error {
			report.Outcomes[i] = r.runOne(ctx, test)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, test Test) Outcome {
	start := time.Now()
	outcome := Outcome{ID: test.ID}
	defer func() {
		outcome.Duration = time.Since(start)
	}()

	if test.Manifest.Manual {
		outcome.Skipped = true
		outcome.Detail = "manual test"
		return outcome
	}

	doc, detail, ok := r.load(test)
	if !ok {
		outcome.Detail = detail
		return outcome
	}

	steps, verdict, detail := r.execute(ctx, test, doc, nil)
	if verdict != "pass" {
		outcome.Detail = detail
		return outcome
	}

	if r.Compare {
		dispatch := codegen.NewDispatch(doc)
		compiledSteps, compiledVerdict, compiledDetail := r.execute(ctx, test, doc, dispatch)
		if compiledVerdict != "pass" {
			outcome.Detail = "compiled dispatch: " + compiledDetail
			return outcome
		}
		if !equalSteps(steps, compiledSteps) {
			outcome.Detail = "engine traces diverge"
			return outcome
		}
	}

	outcome.Passed = true
	return outcome
}

func (r *Runner) load(test Test) (*model.Document, string, bool) {
	data, err := os.ReadFile(test.Path)
	if err != nil {
		return nil, fmt.Sprintf("read: %v", err), false
	}
	if test.TXML {
		if data, err = ConvertTXML(data); err != nil {
			return nil, err.Error(), false
		}
	}
	doc, result, err := parser.ParseBytes(data, test.Path)
	if err != nil {
		return nil, fmt.Sprintf("xml: %v", err), false
	}
	if result.HasErrors() {
		return nil, result.Diagnostics[0].String(), false
	}
	return doc, "", true
}

// execute runs one session over the document and waits for a verdict.
func (r *Runner) execute(ctx context.Context, test Test, doc *model.Document, dispatch interpreter.Dispatch) ([]string, string, string) {
	tr := newTrace()
	opts := []interpreter.Option{
		interpreter.WithLogger(r.Logger),
		interpreter.WithObserver(tr),
		interpreter.WithDocumentLoader(fileLoader(test.Path)),
	}
	if dispatch != nil {
		opts = append(opts, interpreter.WithDispatch(dispatch))
	}
	session, err := interpreter.New(doc, opts...)
	if err != nil {
		return nil, "", fmt.Sprintf("session: %v", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := session.Start(runCtx); err != nil {
		return nil, "", fmt.Sprintf("start: %v", err)
	}
	defer func() { _ = session.Stop(context.Background()) }()

	timeout := test.Manifest.Timeout
	select {
	case verdict := <-tr.verdict:
		if verdict == "pass" {
			// Let the session finish its teardown before snapshotting.
			select {
			case <-session.Done():
			case <-time.After(timeout):
			}
			return tr.snapshot(), "pass", ""
		}
		return tr.snapshot(), verdict, "reached fail state"
	case <-session.Done():
		return tr.snapshot(), "", "terminated without verdict"
	case <-time.After(timeout):
		return tr.snapshot(), "", "timeout"
	case <-ctx.Done():
		return tr.snapshot(), "", "cancelled"
	}
}

// fileLoader resolves invoke src paths relative to the test file.
func fileLoader(testPath string) interpreter.DocumentLoader {
	return func(ctx context.Context, src string) (*model.Document, error) {
		data, err := os.ReadFile(resolvePath(testPath, src))
		if err != nil {
			return nil, err
		}
		doc, result, err := parser.ParseBytes(data, src)
		if err != nil {
			return nil, err
		}
		if result.HasErrors() {
			return nil, fmt.Errorf("%s", result.Diagnostics[0].String())
		}
		return doc, nil
	}
}

func resolvePath(testPath, src string) string {
	src = strings.TrimPrefix(src, "file:")
	if filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(filepath.Dir(testPath), src)
}

func equalSteps(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
