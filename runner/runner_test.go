package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/program"
	"github.com/chazu/hintbridge/vm"
)

const testProgram = `
[entry]
pc = 0
ap = 7
fp = 5

[[memory]]
segment = 1
offset = 3
value = "9"

[[hints]]
pc = 0
code = "memory[ap] = segments.add()"

[[hints]]
pc = 1
code = "x = memory[fp - 2] + 1"
`

// stepRunner advances pc and ap by one per instruction.
type stepRunner struct{}

func (stepRunner) StepInstruction(machine *vm.VirtualMachine) error {
	machine.RunContext.Pc.Offset++
	machine.RunContext.Ap.Offset++
	return nil
}

type recorder struct {
	steps []int
	hints []hint.HintEvent
	fail  error
}

func (r *recorder) RecordStep(step int, _ vm.RunContext) error {
	r.steps = append(r.steps, step)
	return r.fail
}

func (r *recorder) RecordHint(_ int, ev hint.HintEvent) error {
	r.hints = append(r.hints, ev)
	return nil
}

func newTestSession(t *testing.T, mutate func(*Config)) *Session {
	t.Helper()
	p, err := program.Parse([]byte(testProgram))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg := Config{Program: p, Instructions: stepRunner{}, TraceEnabled: true}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewInitializesMemory(t *testing.T) {
	s := newTestSession(t, nil)
	m := s.VM()

	if got := m.Memory().NumSegments(); got != 3 {
		t.Errorf("segments = %d, want 3", got)
	}
	if got := m.Signature.Base(); got != vm.NewRelocatable(2, 0) {
		t.Errorf("signature base = %s", got)
	}
	if got := m.Pc(); got != vm.NewRelocatable(0, 0) {
		t.Errorf("pc = %s", got)
	}
	if got := m.Ap(); got != vm.NewRelocatable(1, 7) {
		t.Errorf("ap = %s", got)
	}
	if got := m.Fp(); got != vm.NewRelocatable(1, 5) {
		t.Errorf("fp = %s", got)
	}
	f, err := m.Memory().GetFelt(vm.NewRelocatable(1, 3))
	if err != nil || f.Cmp(vm.NewFelt(9)) != 0 {
		t.Errorf("memory[1:3] = %s, %v", f, err)
	}
}

func TestNewWithoutProgram(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewAppliesSignatures(t *testing.T) {
	sigs := hint.NewSignatures()
	sigs.Add(vm.NewRelocatable(2, 0), vm.Signature{R: vm.NewFelt(1), S: vm.NewFelt(2)})
	s := newTestSession(t, func(c *Config) { c.Signatures = sigs })

	sig, ok := s.VM().Signature.Signature(vm.NewRelocatable(2, 0))
	if !ok || sig.R.Cmp(vm.NewFelt(1)) != 0 || sig.S.Cmp(vm.NewFelt(2)) != 0 {
		t.Errorf("signature = %+v, %v", sig, ok)
	}
}

func TestNewRejectsMisplacedSignature(t *testing.T) {
	p, err := program.Parse([]byte(testProgram))
	if err != nil {
		t.Fatal(err)
	}
	sigs := hint.NewSignatures()
	sigs.Add(vm.NewRelocatable(1, 0), vm.Signature{})
	_, err = New(Config{Program: p, Signatures: sigs})
	if !errors.Is(err, vm.ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}
}

func TestRunSteps(t *testing.T) {
	rec := &recorder{}
	s := newTestSession(t, func(c *Config) { c.Recorder = rec })

	n, err := s.RunSteps(context.Background(), 2)
	if err != nil || n != 2 {
		t.Fatalf("RunSteps = %d, %v", n, err)
	}

	ptr, err := s.VM().Memory().GetRelocatable(vm.NewRelocatable(1, 7))
	if err != nil || ptr != vm.NewRelocatable(3, 0) {
		t.Errorf("memory[1:7] = %s, %v", ptr, err)
	}
	x, err := s.Scopes().Get("x")
	if err != nil || x != 10 {
		t.Errorf("x = %v, %v", x, err)
	}

	if len(rec.steps) != 2 || rec.steps[0] != 0 || rec.steps[1] != 1 {
		t.Errorf("recorded steps = %v", rec.steps)
	}
	if len(rec.hints) != 2 {
		t.Fatalf("recorded hints = %d", len(rec.hints))
	}
	if !rec.hints[0].Native || rec.hints[1].Native {
		t.Errorf("native flags = %v, %v", rec.hints[0].Native, rec.hints[1].Native)
	}
	if got := len(s.VM().Trace()); got != 2 {
		t.Errorf("trace length = %d", got)
	}
}

func TestRunStepsCancelled(t *testing.T) {
	s := newTestSession(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := s.RunSteps(ctx, 3)
	if n != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("RunSteps = %d, %v", n, err)
	}
}

func TestStepRecorderFailure(t *testing.T) {
	boom := errors.New("boom")
	s := newTestSession(t, func(c *Config) { c.Recorder = &recorder{fail: boom} })
	if err := s.Step(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if s.VM().CurrentStep() != 0 {
		t.Error("instruction ran after recorder failure")
	}
}

func TestStepHintFailureStopsInstruction(t *testing.T) {
	s := newTestSession(t, nil)
	s.Program().Hints[0] = []*hint.HintData{{Pc: 0, Code: "fail('bad')"}}

	err := s.Step()
	var he *hint.HintError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HintError", err)
	}
	if s.VM().Pc() != vm.NewRelocatable(0, 0) {
		t.Errorf("pc moved to %s", s.VM().Pc())
	}
}

func TestRunUntilPC(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.RunUntilPC(context.Background(), 3, 0); err != nil {
		t.Fatalf("RunUntilPC: %v", err)
	}
	if s.VM().CurrentStep() != 3 {
		t.Errorf("steps = %d", s.VM().CurrentStep())
	}
}

func TestRunUntilPCLimit(t *testing.T) {
	s := newTestSession(t, nil)
	err := s.RunUntilPC(context.Background(), 10, 2)
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("err = %v, want ErrStepLimit", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestSession(t, nil)
	if _, err := s.RunSteps(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "snap.cbor")
	if err := s.WriteSnapshot(path); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	want := s.Snapshot()
	if snap.Registers != want.Registers {
		t.Errorf("registers = %+v, want %+v", snap.Registers, want.Registers)
	}
	if snap.Steps != 2 {
		t.Errorf("steps = %d", snap.Steps)
	}
	if len(snap.Cells) != 2 {
		t.Errorf("cells = %d, want 2", len(snap.Cells))
	}
	if len(snap.SegmentSizes) != len(want.SegmentSizes) {
		t.Errorf("segment sizes = %v, want %v", snap.SegmentSizes, want.SegmentSizes)
	}
}
