package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cairovm/cairovm/felt"
	"github.com/cairovm/cairovm/memory"
	"github.com/cairovm/cairovm/vm"
)

var ErrStepBudgetExceeded = errors.New("step budget exceeded")

// Runner owns a booted machine. The boot layout is two words of initial
// stack ahead of the frame: a pointer into an empty segment standing in for
// the caller's fp, and the final pc the entry function returns to.
type Runner struct {
	Machine *vm.VirtualMachine
	FinalPc memory.Relocatable

	log log.Logger
}

// NewRunner validates and loads prog into a fresh machine.
func NewRunner(prog *Program, logger log.Logger) (*Runner, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	words, err := prog.Words()
	if err != nil {
		return nil, err
	}

	mem := memory.NewMemory()
	progBase := mem.AddSegment()
	execBase := mem.AddSegment()

	data := make([]memory.Word, len(words))
	for i := range words {
		data[i] = memory.FeltWord(words[i])
	}
	if _, err := mem.LoadData(progBase, data); err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}

	retFp := mem.AddSegment()
	finalPc := mem.AddSegment()
	frame, err := mem.LoadData(execBase, []memory.Word{
		memory.PtrWord(retFp),
		memory.PtrWord(finalPc),
	})
	if err != nil {
		return nil, fmt.Errorf("seeding stack: %w", err)
	}

	pc, err := progBase.AddOffset(prog.Entrypoint)
	if err != nil {
		return nil, err
	}
	ctx := vm.RunContext{Pc: pc, Ap: frame, Fp: frame}
	return &Runner{
		Machine: vm.NewVirtualMachine(mem, ctx),
		FinalPc: finalPc,
		log:     logger,
	}, nil
}

// Run steps the machine until the entry function returns to the final pc.
// maxSteps of zero means no budget.
func (r *Runner) Run(ctx context.Context, maxSteps uint64) error {
	return r.RunUntilPc(ctx, r.FinalPc, maxSteps)
}

// RunUntilPc steps the machine until it reaches target. The context is polled
// coarsely so cancellation does not show up in the per-step cost.
func (r *Runner) RunUntilPc(ctx context.Context, target memory.Relocatable, maxSteps uint64) error {
	start := time.Now()
	startStep := r.Machine.StepCount

	for r.Machine.Ctx.Pc != target {
		if r.Machine.StepCount%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if maxSteps > 0 && r.Machine.StepCount-startStep >= maxSteps {
			return fmt.Errorf("%w: %d", ErrStepBudgetExceeded, maxSteps)
		}
		if err := r.Machine.Step(); err != nil {
			return err
		}
	}

	if r.log != nil {
		delta := time.Since(start)
		steps := r.Machine.StepCount - startStep
		r.log.Info("run complete",
			"steps", steps,
			"ips", float64(steps)/(float64(delta)/float64(time.Second)),
			"segments", r.Machine.Mem.NumSegments(),
			"ap", r.Machine.Ctx.Ap,
			"fp", r.Machine.Ctx.Fp,
		)
	}
	return nil
}

// ReturnValues reads the top n cells below ap, the slots a conforming entry
// function leaves its return values in.
func (r *Runner) ReturnValues(n uint64) ([]memory.Word, error) {
	base, err := r.Machine.Ctx.Ap.SubOffset(n)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Word, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := base.AddOffset(i)
		if err != nil {
			return nil, err
		}
		w, ok := r.Machine.Mem.Get(addr)
		if !ok {
			return nil, fmt.Errorf("no return value at %v", addr)
		}
		out = append(out, w)
	}
	return out, nil
}

// FeltReturnValues is ReturnValues narrowed to field elements.
func (r *Runner) FeltReturnValues(n uint64) ([]felt.Felt, error) {
	words, err := r.ReturnValues(n)
	if err != nil {
		return nil, err
	}
	out := make([]felt.Felt, len(words))
	for i, w := range words {
		f, ok := w.Felt()
		if !ok {
			return nil, fmt.Errorf("%w: return value %d is %v", memory.ErrTypeMismatch, i, w)
		}
		out[i] = f
	}
	return out, nil
}
