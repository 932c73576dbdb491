package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/hintbridge/manifest"
	"github.com/chazu/hintbridge/program"
	"github.com/chazu/hintbridge/runner"
	"github.com/chazu/hintbridge/store"
	"github.com/chazu/hintbridge/trace"
)

var log = commonlog.GetLogger("hintbridge.hintrun")

// run executes the configured program and writes the configured outputs.
func run(ctx context.Context, m *manifest.Manifest) (*runner.Session, error) {
	hintsPath := m.Path(m.Program.Hints)
	if hintsPath == "" {
		return nil, errors.New("[program] hints is required")
	}
	prog, err := program.Load(hintsPath)
	if err != nil {
		return nil, err
	}
	prime, err := m.Prime()
	if err != nil {
		return nil, err
	}
	sigs, err := m.SignatureTable()
	if err != nil {
		return nil, err
	}

	cfg := runner.Config{
		Prime:        prime,
		TraceEnabled: m.VM.Trace || m.Output.Trace != "",
		Program:      prog,
		Signatures:   sigs,
	}

	var replay *trace.ReplayRunner
	if p := m.Path(m.Program.Trace); p != "" {
		steps, err := trace.ReadFile(p)
		if err != nil {
			return nil, err
		}
		replay = trace.NewReplayRunner(steps)
		cfg.Instructions = replay
	}

	var history *store.Run
	if p := m.Path(m.Output.History); p != "" {
		db, err := store.Open(p)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		if history, err = db.BeginRun(hintsPath); err != nil {
			return nil, err
		}
		cfg.Recorder = history
	}

	session, err := runner.New(cfg)
	if err != nil {
		return nil, err
	}

	runErr := execute(ctx, session, m, replay)
	if history != nil {
		if err := history.Finish(session.VM().CurrentStep(), runErr); err != nil {
			log.Errorf("finishing history: %s", err)
		}
	}
	if runErr != nil {
		return session, runErr
	}

	if p := m.Path(m.Output.Snapshot); p != "" {
		if err := session.WriteSnapshot(p); err != nil {
			return session, fmt.Errorf("write snapshot: %w", err)
		}
	}
	if p := m.Path(m.Output.Trace); p != "" {
		if err := trace.WriteFile(p, trace.FromEntries(session.VM().Trace())); err != nil {
			return session, fmt.Errorf("write trace: %w", err)
		}
	}
	log.Infof("run finished after %d step(s), pc %s", session.VM().CurrentStep(), session.VM().Pc())
	return session, nil
}

func execute(ctx context.Context, session *runner.Session, m *manifest.Manifest, replay *trace.ReplayRunner) error {
	if m.Program.EndPC != nil {
		return session.RunUntilPC(ctx, *m.Program.EndPC, m.Program.Steps)
	}
	steps := m.Program.Steps
	if steps == 0 && replay != nil {
		steps = replay.Remaining()
	}
	if steps == 0 {
		return errors.New("nothing to run: set [program] steps, end-pc or trace")
	}
	_, err := session.RunSteps(ctx, steps)
	return err
}
