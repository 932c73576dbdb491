package hint

import (
	"errors"
	"time"

	"github.com/chazu/hintbridge/scope"
)

// StepHint runs every hint attached to the current pc, in order. Each hint
// is offered to processor first and runs as a script when the processor
// does not know it. A nil processor sends every hint to the script engine.
func (b *Bridge) StepHint(processor HintProcessor, locals Locals, scopes *scope.ExecutionScopes, hints map[int][]*HintData) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer b.release()
	return b.stepHint(processor, locals, scopes, hints)
}

// Step runs the hints for the current pc and then exactly one instruction.
// The instruction does not run if any hint fails.
func (b *Bridge) Step(processor HintProcessor, locals Locals, scopes *scope.ExecutionScopes, hints map[int][]*HintData) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer b.release()

	if err := b.stepHint(processor, locals, scopes, hints); err != nil {
		return err
	}
	return b.vm.StepInstruction()
}

func (b *Bridge) stepHint(processor HintProcessor, locals Locals, scopes *scope.ExecutionScopes, hints map[int][]*HintData) error {
	pc := b.vm.Pc().Offset
	list := hints[pc]
	if len(list) == 0 {
		return nil
	}
	log.Debugf("pc %d: %d hint(s)", pc, len(list))
	for _, data := range list {
		if err := b.dispatch(processor, locals, scopes, data); err != nil {
			log.Errorf("pc %d: %s", pc, err)
			return err
		}
	}
	return nil
}

func (b *Bridge) dispatch(processor HintProcessor, locals Locals, scopes *scope.ExecutionScopes, data *HintData) error {
	start := time.Now()
	err := ErrUnknownHint
	if processor != nil {
		err = processor.ExecuteHint(b.vm, scopes, data, NewIds(b.vm, data, b.structs))
	}
	native := true
	if errors.Is(err, ErrUnknownHint) {
		native = false
		err = b.executeHint(data, locals, scopes)
	}
	if b.observer != nil {
		b.observer(HintEvent{
			Pc:       data.Pc,
			Code:     data.Code,
			Native:   native,
			Duration: time.Since(start),
			Err:      err,
		})
	}
	return err
}
