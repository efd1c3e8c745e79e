package vm

import (
	"fmt"

	"github.com/cairovm/cairovm/memory"
)

// RunContext holds the three machine registers. pc points into the program
// segment; ap and fp point into the execution segment.
type RunContext struct {
	Pc memory.Relocatable `json:"pc"`
	Ap memory.Relocatable `json:"ap"`
	Fp memory.Relocatable `json:"fp"`
}

func (ctx *RunContext) register(r Register) memory.Relocatable {
	if r == FP {
		return ctx.Fp
	}
	return ctx.Ap
}

func applyOffset(base memory.Relocatable, off int16) (memory.Relocatable, error) {
	if off < 0 {
		return base.SubOffset(uint64(-int32(off)))
	}
	return base.AddOffset(uint64(off))
}

// DstAddr resolves the destination operand address.
func (ctx *RunContext) DstAddr(inst *Instruction) (memory.Relocatable, error) {
	return applyOffset(ctx.register(inst.DstReg), inst.OffDst)
}

// Op0Addr resolves the first operand address.
func (ctx *RunContext) Op0Addr(inst *Instruction) (memory.Relocatable, error) {
	return applyOffset(ctx.register(inst.Op0Reg), inst.OffOp0)
}

// Op1Addr resolves the second operand address. The Op0 source dereferences the
// already-fetched op0 value, so op0 must be a pointer in that mode; an
// immediate always lives in the cell after the instruction word.
func (ctx *RunContext) Op1Addr(inst *Instruction, op0 *memory.Word) (memory.Relocatable, error) {
	switch inst.Op1Source {
	case Op1SrcImm:
		if inst.OffOp1 != 1 {
			return memory.Relocatable{}, fmt.Errorf("%w: immediate with off_op1 %d", ErrInvalidOp1Src, inst.OffOp1)
		}
		return applyOffset(ctx.Pc, inst.OffOp1)
	case Op1SrcAP:
		return applyOffset(ctx.Ap, inst.OffOp1)
	case Op1SrcFP:
		return applyOffset(ctx.Fp, inst.OffOp1)
	default: // Op1SrcOp0
		if op0 == nil {
			return memory.Relocatable{}, fmt.Errorf("%w: op0-relative operand with unknown op0", memory.ErrTypeMismatch)
		}
		base, ok := op0.Ptr()
		if !ok {
			return memory.Relocatable{}, fmt.Errorf("%w: op0-relative operand with non-pointer op0 %v", memory.ErrTypeMismatch, op0)
		}
		return applyOffset(base, inst.OffOp1)
	}
}
