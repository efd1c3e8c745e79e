// Package vm implements the execution core: instruction decoding, operand
// deduction, opcode assertions and register updates over a segmented memory.
package vm

import "fmt"

// Register selects which pointer register an offset is applied to.
type Register uint8

const (
	AP Register = iota
	FP
)

// Op1Src selects the base address used to read the second operand.
type Op1Src uint8

const (
	Op1SrcOp0 Op1Src = iota
	Op1SrcImm
	Op1SrcFP
	Op1SrcAP
)

// ResLogic selects how res is computed from the operands.
type ResLogic uint8

const (
	ResOp1 ResLogic = iota
	ResAdd
	ResMul
	ResUnconstrained
)

// PcUpdate selects how pc advances after the step.
type PcUpdate uint8

const (
	PcUpdateRegular PcUpdate = iota
	PcUpdateJump
	PcUpdateJumpRel
	PcUpdateJnz
)

// ApUpdate selects how ap advances after the step.
type ApUpdate uint8

const (
	ApUpdateRegular ApUpdate = iota
	ApUpdateAdd
	ApUpdateAdd1
	ApUpdateAdd2
)

// FpUpdate is derived from the opcode rather than encoded.
type FpUpdate uint8

const (
	FpUpdateRegular FpUpdate = iota
	FpUpdateApPlus2
	FpUpdateDst
)

type Opcode uint8

const (
	OpcodeNop Opcode = iota
	OpcodeCall
	OpcodeRet
	OpcodeAssertEq
)

// Instruction is one decoded machine word. Offsets are the signed values
// recovered from their biased 16-bit encodings.
type Instruction struct {
	OffDst int16
	OffOp0 int16
	OffOp1 int16

	DstReg    Register
	Op0Reg    Register
	Op1Source Op1Src
	Res       ResLogic
	PcUpdate  PcUpdate
	ApUpdate  ApUpdate
	FpUpdate  FpUpdate
	Opcode    Opcode
}

// Size returns the number of memory cells the instruction occupies: two when
// an immediate follows the instruction word, one otherwise.
func (inst *Instruction) Size() uint64 {
	if inst.Op1Source == Op1SrcImm {
		return 2
	}
	return 1
}

const offsetBias = 1 << 15

func fromBiased(v uint16) int16 {
	return int16(int32(v) - offsetBias)
}

func toBiased(v int16) uint64 {
	return uint64(uint16(int32(v) + offsetBias))
}

// Bit positions of the flag group, counted from bit 48 of the word.
const (
	dstRegBit = 0
	op0RegBit = 1
	op1SrcOff = 2
	resOff    = 5
	pcOff     = 7
	apOff     = 10
	opcodeOff = 12
)

// DecodeInstruction splits a 63-bit instruction word into its offsets and
// flags. Flag groups are one-hot; any group with more than one bit set, and
// any word with bit 63 set, is rejected.
func DecodeInstruction(enc uint64) (Instruction, error) {
	if enc>>63 != 0 {
		return Instruction{}, fmt.Errorf("%w: %#x", ErrHighBitSet, enc)
	}

	inst := Instruction{
		OffDst: fromBiased(uint16(enc)),
		OffOp0: fromBiased(uint16(enc >> 16)),
		OffOp1: fromBiased(uint16(enc >> 32)),
	}

	flags := enc >> 48
	inst.DstReg = Register(flags >> dstRegBit & 1)
	inst.Op0Reg = Register(flags >> op0RegBit & 1)

	switch flags >> op1SrcOff & 7 {
	case 0:
		inst.Op1Source = Op1SrcOp0
	case 1:
		inst.Op1Source = Op1SrcImm
	case 2:
		inst.Op1Source = Op1SrcFP
	case 4:
		inst.Op1Source = Op1SrcAP
	default:
		return Instruction{}, fmt.Errorf("%w: %#b", ErrInvalidOp1Src, flags>>op1SrcOff&7)
	}

	switch flags >> pcOff & 7 {
	case 0:
		inst.PcUpdate = PcUpdateRegular
	case 1:
		inst.PcUpdate = PcUpdateJump
	case 2:
		inst.PcUpdate = PcUpdateJumpRel
	case 4:
		inst.PcUpdate = PcUpdateJnz
	default:
		return Instruction{}, fmt.Errorf("%w: %#b", ErrInvalidPcUpdate, flags>>pcOff&7)
	}

	switch flags >> resOff & 3 {
	case 0:
		// A conditional jump leaves res unconstrained; everywhere else the
		// zero encoding means res = op1.
		if inst.PcUpdate == PcUpdateJnz {
			inst.Res = ResUnconstrained
		} else {
			inst.Res = ResOp1
		}
	case 1:
		inst.Res = ResAdd
	case 2:
		inst.Res = ResMul
	default:
		return Instruction{}, fmt.Errorf("%w: %#b", ErrInvalidResLogic, flags>>resOff&3)
	}

	switch flags >> opcodeOff & 7 {
	case 0:
		inst.Opcode = OpcodeNop
	case 1:
		inst.Opcode = OpcodeCall
	case 2:
		inst.Opcode = OpcodeRet
	case 4:
		inst.Opcode = OpcodeAssertEq
	default:
		return Instruction{}, fmt.Errorf("%w: %#b", ErrInvalidOpcode, flags>>opcodeOff&7)
	}

	switch flags >> apOff & 3 {
	case 0:
		// A call pushes the return frame, advancing ap by two.
		if inst.Opcode == OpcodeCall {
			inst.ApUpdate = ApUpdateAdd2
		} else {
			inst.ApUpdate = ApUpdateRegular
		}
	case 1:
		inst.ApUpdate = ApUpdateAdd
	case 2:
		inst.ApUpdate = ApUpdateAdd1
	default:
		return Instruction{}, fmt.Errorf("%w: %#b", ErrInvalidApUpdate, flags>>apOff&3)
	}

	switch inst.Opcode {
	case OpcodeCall:
		inst.FpUpdate = FpUpdateApPlus2
	case OpcodeRet:
		inst.FpUpdate = FpUpdateDst
	default:
		inst.FpUpdate = FpUpdateRegular
	}

	return inst, nil
}

// Encode packs the instruction back into its word form. It is the inverse of
// DecodeInstruction for every instruction that decoder accepts.
func (inst *Instruction) Encode() uint64 {
	enc := toBiased(inst.OffDst) | toBiased(inst.OffOp0)<<16 | toBiased(inst.OffOp1)<<32

	var flags uint64
	flags |= uint64(inst.DstReg) << dstRegBit
	flags |= uint64(inst.Op0Reg) << op0RegBit

	switch inst.Op1Source {
	case Op1SrcImm:
		flags |= 1 << op1SrcOff
	case Op1SrcFP:
		flags |= 2 << op1SrcOff
	case Op1SrcAP:
		flags |= 4 << op1SrcOff
	}

	switch inst.Res {
	case ResAdd:
		flags |= 1 << resOff
	case ResMul:
		flags |= 2 << resOff
	}

	switch inst.PcUpdate {
	case PcUpdateJump:
		flags |= 1 << pcOff
	case PcUpdateJumpRel:
		flags |= 2 << pcOff
	case PcUpdateJnz:
		flags |= 4 << pcOff
	}

	switch inst.ApUpdate {
	case ApUpdateAdd:
		flags |= 1 << apOff
	case ApUpdateAdd1:
		flags |= 2 << apOff
	}

	switch inst.Opcode {
	case OpcodeCall:
		flags |= 1 << opcodeOff
	case OpcodeRet:
		flags |= 2 << opcodeOff
	case OpcodeAssertEq:
		flags |= 4 << opcodeOff
	}

	return enc | flags<<48
}
