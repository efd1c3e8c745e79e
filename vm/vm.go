package vm

import (
	"errors"
	"fmt"

	"github.com/cairovm/cairovm/felt"
	"github.com/cairovm/cairovm/memory"
)

// VirtualMachine drives the fetch-decode-execute loop over a Memory.
// Register updates are computed against the pre-step context and committed
// atomically at the end of a successful step; a failed step leaves both the
// registers and the step counter untouched.
type VirtualMachine struct {
	Ctx       RunContext     `json:"ctx"`
	Mem       *memory.Memory `json:"memory"`
	StepCount uint64         `json:"step"`
}

func NewVirtualMachine(mem *memory.Memory, ctx RunContext) *VirtualMachine {
	return &VirtualMachine{Ctx: ctx, Mem: mem}
}

// operands is the fully resolved operand set of one instruction. res and any
// operand the cascade could not pin down stay nil.
type operands struct {
	dstAddr memory.Relocatable
	op0Addr memory.Relocatable
	op1Addr memory.Relocatable

	dst *memory.Word
	op0 *memory.Word
	op1 *memory.Word
	res *memory.Word
}

// Step executes the instruction at pc.
func (vm *VirtualMachine) Step() error {
	inst, err := vm.fetch()
	if err != nil {
		return fmt.Errorf("step %d: %w", vm.StepCount, err)
	}
	ops, err := vm.resolveOperands(&inst)
	if err != nil {
		return fmt.Errorf("step %d (pc %v): %w", vm.StepCount, vm.Ctx.Pc, err)
	}
	if err := vm.checkOpcode(&inst, ops); err != nil {
		return fmt.Errorf("step %d (pc %v): %w", vm.StepCount, vm.Ctx.Pc, err)
	}
	next, err := vm.nextContext(&inst, ops)
	if err != nil {
		return fmt.Errorf("step %d (pc %v): %w", vm.StepCount, vm.Ctx.Pc, err)
	}
	vm.Ctx = next
	vm.StepCount++
	return nil
}

func (vm *VirtualMachine) fetch() (Instruction, error) {
	word, ok := vm.Mem.Get(vm.Ctx.Pc)
	if !ok {
		return Instruction{}, fmt.Errorf("%w: %v", ErrEndOfInstructions, vm.Ctx.Pc)
	}
	f, ok := word.Felt()
	if !ok {
		return Instruction{}, fmt.Errorf("%w: %v", ErrInstructionEncoding, word)
	}
	enc, ok := felt.ToUint64(&f)
	if !ok {
		return Instruction{}, fmt.Errorf("%w: %s", ErrInstructionEncoding, felt.Hex(&f))
	}
	return DecodeInstruction(enc)
}

// resolveOperands reads the operands that are present in memory and deduces
// the missing ones from the opcode equations, writing every successful
// deduction back so later steps observe it.
func (vm *VirtualMachine) resolveOperands(inst *Instruction) (*operands, error) {
	ops := &operands{}
	var err error

	if ops.dstAddr, err = vm.Ctx.DstAddr(inst); err != nil {
		return nil, err
	}
	if ops.op0Addr, err = vm.Ctx.Op0Addr(inst); err != nil {
		return nil, err
	}
	ops.dst = getWord(vm.Mem, ops.dstAddr)
	ops.op0 = getWord(vm.Mem, ops.op0Addr)

	if ops.op1Addr, err = vm.Ctx.Op1Addr(inst, ops.op0); err != nil {
		return nil, err
	}
	ops.op1 = getWord(vm.Mem, ops.op1Addr)

	// Deduced operands become part of the trace: each one is written back as
	// soon as it is pinned down.
	if ops.op0 == nil {
		op0, res, err := vm.deduceOp0(inst, ops.dst, ops.op1)
		if err != nil {
			return nil, err
		}
		if op0 != nil {
			if err := vm.Mem.Insert(ops.op0Addr, *op0); err != nil {
				return nil, err
			}
		}
		ops.op0 = op0
		ops.res = res
	}
	if ops.op1 == nil {
		op1, res, err := vm.deduceOp1(inst, ops.dst, ops.op0)
		if err != nil {
			return nil, err
		}
		if op1 != nil {
			if err := vm.Mem.Insert(ops.op1Addr, *op1); err != nil {
				return nil, err
			}
		}
		ops.op1 = op1
		if ops.res == nil {
			ops.res = res
		}
	}

	if ops.res == nil {
		if ops.res, err = computeRes(inst, ops.op0, ops.op1); err != nil {
			return nil, err
		}
	}
	if ops.dst == nil {
		ops.dst = vm.deduceDst(inst, ops.res)
		if ops.dst != nil {
			if err := vm.Mem.Insert(ops.dstAddr, *ops.dst); err != nil {
				return nil, err
			}
		}
	}
	return ops, nil
}

func getWord(mem *memory.Memory, addr memory.Relocatable) *memory.Word {
	w, ok := mem.Get(addr)
	if !ok {
		return nil
	}
	return &w
}

// deduceOp0 recovers op0 (and sometimes res) from dst and op1. A call's op0
// is always the return pc. An assert-eq inverts its res equation when it can;
// an uninvertible equation is not an error, the operand simply stays unknown.
func (vm *VirtualMachine) deduceOp0(inst *Instruction, dst, op1 *memory.Word) (*memory.Word, *memory.Word, error) {
	if inst.Opcode == OpcodeCall {
		ret, err := vm.Ctx.Pc.AddOffset(inst.Size())
		if err != nil {
			return nil, nil, err
		}
		w := memory.PtrWord(ret)
		return &w, nil, nil
	}
	if inst.Opcode != OpcodeAssertEq {
		return nil, nil, nil
	}
	switch inst.Res {
	case ResAdd:
		if dst == nil || op1 == nil {
			return nil, nil, nil
		}
		op0, err := dst.Sub(*op1)
		if err != nil {
			return nil, nil, err
		}
		return &op0, dst, nil
	case ResMul:
		if dst == nil || op1 == nil {
			return nil, nil, nil
		}
		d, dok := dst.Felt()
		o, ook := op1.Felt()
		if !dok || !ook || o.IsZero() {
			return nil, nil, nil
		}
		q, err := felt.Div(&d, &o)
		if err != nil {
			return nil, nil, nil
		}
		w := memory.FeltWord(q)
		return &w, dst, nil
	}
	return nil, nil, nil
}

// deduceOp1 mirrors deduceOp0 for the second operand. Only assert-eq gives
// enough structure to invert.
func (vm *VirtualMachine) deduceOp1(inst *Instruction, dst, op0 *memory.Word) (*memory.Word, *memory.Word, error) {
	if inst.Opcode != OpcodeAssertEq {
		return nil, nil, nil
	}
	switch inst.Res {
	case ResOp1:
		if dst == nil {
			return nil, nil, nil
		}
		return dst, dst, nil
	case ResAdd:
		if dst == nil || op0 == nil {
			return nil, nil, nil
		}
		op1, err := dst.Sub(*op0)
		if err != nil {
			return nil, nil, err
		}
		return &op1, dst, nil
	case ResMul:
		if dst == nil || op0 == nil {
			return nil, nil, nil
		}
		d, dok := dst.Felt()
		o, ook := op0.Felt()
		if !dok || !ook || o.IsZero() {
			return nil, nil, nil
		}
		q, err := felt.Div(&d, &o)
		if err != nil {
			return nil, nil, nil
		}
		w := memory.FeltWord(q)
		return &w, dst, nil
	}
	return nil, nil, nil
}

// computeRes evaluates the res logic over whatever operands are known. Res
// stays nil when an input it needs is missing or the logic is unconstrained.
func computeRes(inst *Instruction, op0, op1 *memory.Word) (*memory.Word, error) {
	switch inst.Res {
	case ResOp1:
		return op1, nil
	case ResAdd:
		if op0 == nil || op1 == nil {
			return nil, nil
		}
		res, err := op0.Add(*op1)
		if err != nil {
			return nil, err
		}
		return &res, nil
	case ResMul:
		if op0 == nil || op1 == nil {
			return nil, nil
		}
		res, err := op0.Mul(*op1)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	return nil, nil
}

// deduceDst fills the destination when the opcode pins it: assert-eq forces
// dst = res, call stores the caller's fp.
func (vm *VirtualMachine) deduceDst(inst *Instruction, res *memory.Word) *memory.Word {
	switch inst.Opcode {
	case OpcodeAssertEq:
		return res
	case OpcodeCall:
		w := memory.PtrWord(vm.Ctx.Fp)
		return &w
	}
	return nil
}

// checkOpcode enforces the opcode's assertion over the resolved operands.
func (vm *VirtualMachine) checkOpcode(inst *Instruction, ops *operands) error {
	switch inst.Opcode {
	case OpcodeAssertEq:
		if ops.res == nil {
			return ErrUnconstrainedRes
		}
		if ops.dst == nil || !ops.dst.Equal(*ops.res) {
			return fmt.Errorf("%w: dst %v, res %v", ErrAssertEqMismatch, ops.dst, ops.res)
		}
	case OpcodeCall:
		ret, err := vm.Ctx.Pc.AddOffset(inst.Size())
		if err != nil {
			return err
		}
		if ops.op0 == nil || !ops.op0.Equal(memory.PtrWord(ret)) {
			return fmt.Errorf("%w: got %v, want %v", ErrInvalidCallOp0, ops.op0, ret)
		}
		if ops.dst == nil || !ops.dst.Equal(memory.PtrWord(vm.Ctx.Fp)) {
			return fmt.Errorf("%w: got %v, want %v", ErrInvalidCallDst, ops.dst, vm.Ctx.Fp)
		}
	}
	return nil
}

func (vm *VirtualMachine) nextContext(inst *Instruction, ops *operands) (RunContext, error) {
	pc, err := vm.nextPc(inst, ops)
	if err != nil {
		return RunContext{}, err
	}
	ap, err := vm.nextAp(inst, ops)
	if err != nil {
		return RunContext{}, err
	}
	fp, err := vm.nextFp(inst, ops)
	if err != nil {
		return RunContext{}, err
	}
	return RunContext{Pc: pc, Ap: ap, Fp: fp}, nil
}

func (vm *VirtualMachine) nextPc(inst *Instruction, ops *operands) (memory.Relocatable, error) {
	switch inst.PcUpdate {
	case PcUpdateJump:
		if ops.res == nil {
			return memory.Relocatable{}, ErrUnconstrainedRes
		}
		target, ok := ops.res.Ptr()
		if !ok {
			return memory.Relocatable{}, fmt.Errorf("%w: %v", ErrInvalidJumpTarget, ops.res)
		}
		return target, nil
	case PcUpdateJumpRel:
		if ops.res == nil {
			return memory.Relocatable{}, ErrUnconstrainedRes
		}
		off, ok := ops.res.Felt()
		if !ok {
			return memory.Relocatable{}, fmt.Errorf("%w: %v", ErrInvalidJumpRelTarget, ops.res)
		}
		return vm.Ctx.Pc.AddFelt(&off)
	case PcUpdateJnz:
		if ops.dst == nil {
			return memory.Relocatable{}, ErrUnconstrainedJnzDst
		}
		if ops.dst.IsZero() {
			return vm.Ctx.Pc.AddOffset(inst.Size())
		}
		if ops.op1 == nil {
			return memory.Relocatable{}, fmt.Errorf("%w: op1 is unknown", ErrInvalidJnzOp1)
		}
		off, ok := ops.op1.Felt()
		if !ok {
			return memory.Relocatable{}, fmt.Errorf("%w: %v", ErrInvalidJnzOp1, ops.op1)
		}
		return vm.Ctx.Pc.AddFelt(&off)
	default:
		return vm.Ctx.Pc.AddOffset(inst.Size())
	}
}

func (vm *VirtualMachine) nextAp(inst *Instruction, ops *operands) (memory.Relocatable, error) {
	switch inst.ApUpdate {
	case ApUpdateAdd:
		if ops.res == nil {
			return memory.Relocatable{}, ErrUnconstrainedRes
		}
		off, ok := ops.res.Felt()
		if !ok {
			return memory.Relocatable{}, fmt.Errorf("%w: ap += %v", memory.ErrTypeMismatch, ops.res)
		}
		return vm.Ctx.Ap.AddFelt(&off)
	case ApUpdateAdd1:
		return vm.Ctx.Ap.AddOffset(1)
	case ApUpdateAdd2:
		return vm.Ctx.Ap.AddOffset(2)
	default:
		return vm.Ctx.Ap, nil
	}
}

func (vm *VirtualMachine) nextFp(inst *Instruction, ops *operands) (memory.Relocatable, error) {
	switch inst.FpUpdate {
	case FpUpdateApPlus2:
		// The callee frame starts just past the pushed [fp, return pc] pair.
		return vm.Ctx.Ap.AddOffset(2)
	case FpUpdateDst:
		if ops.dst == nil {
			return memory.Relocatable{}, fmt.Errorf("%w: dst is unknown", ErrInvalidFpTarget)
		}
		target, ok := ops.dst.Ptr()
		if !ok {
			return memory.Relocatable{}, fmt.Errorf("%w: %v", ErrInvalidFpTarget, ops.dst)
		}
		return target, nil
	default:
		return vm.Ctx.Fp, nil
	}
}

// IsErrHalt reports whether err marks an orderly end of execution rather than
// a fault: running off the end of the instruction stream.
func IsErrHalt(err error) bool {
	return errors.Is(err, ErrEndOfInstructions)
}
