package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Hand-assembled words from real compiled programs.
const (
	encStoreImm = 0x480680017fff8000 // [ap] = imm; ap++
	encRet      = 0x208b7fff7fff7ffe // ret
	encCallRel  = 0x1104800180018000 // call rel imm
)

func TestDecodeStoreImm(t *testing.T) {
	inst, err := DecodeInstruction(encStoreImm)
	require.NoError(t, err)

	require.Equal(t, int16(0), inst.OffDst)
	require.Equal(t, int16(-1), inst.OffOp0)
	require.Equal(t, int16(1), inst.OffOp1)
	require.Equal(t, AP, inst.DstReg)
	require.Equal(t, FP, inst.Op0Reg)
	require.Equal(t, Op1SrcImm, inst.Op1Source)
	require.Equal(t, ResOp1, inst.Res)
	require.Equal(t, PcUpdateRegular, inst.PcUpdate)
	require.Equal(t, ApUpdateAdd1, inst.ApUpdate)
	require.Equal(t, FpUpdateRegular, inst.FpUpdate)
	require.Equal(t, OpcodeAssertEq, inst.Opcode)
	require.Equal(t, uint64(2), inst.Size())
}

func TestDecodeRet(t *testing.T) {
	inst, err := DecodeInstruction(encRet)
	require.NoError(t, err)

	require.Equal(t, int16(-2), inst.OffDst)
	require.Equal(t, int16(-1), inst.OffOp0)
	require.Equal(t, int16(-1), inst.OffOp1)
	require.Equal(t, FP, inst.DstReg)
	require.Equal(t, FP, inst.Op0Reg)
	require.Equal(t, Op1SrcFP, inst.Op1Source)
	require.Equal(t, ResOp1, inst.Res)
	require.Equal(t, PcUpdateJump, inst.PcUpdate)
	require.Equal(t, ApUpdateRegular, inst.ApUpdate)
	require.Equal(t, FpUpdateDst, inst.FpUpdate)
	require.Equal(t, OpcodeRet, inst.Opcode)
	require.Equal(t, uint64(1), inst.Size())
}

func TestDecodeCallRel(t *testing.T) {
	inst, err := DecodeInstruction(encCallRel)
	require.NoError(t, err)

	require.Equal(t, int16(0), inst.OffDst)
	require.Equal(t, int16(1), inst.OffOp0)
	require.Equal(t, int16(1), inst.OffOp1)
	require.Equal(t, AP, inst.DstReg)
	require.Equal(t, AP, inst.Op0Reg)
	require.Equal(t, Op1SrcImm, inst.Op1Source)
	require.Equal(t, ResOp1, inst.Res)
	require.Equal(t, PcUpdateJumpRel, inst.PcUpdate)
	require.Equal(t, ApUpdateAdd2, inst.ApUpdate, "call implies ap += 2")
	require.Equal(t, FpUpdateApPlus2, inst.FpUpdate)
	require.Equal(t, OpcodeCall, inst.Opcode)
	require.Equal(t, uint64(2), inst.Size())
}

func TestDecodeJnzUnconstrainedRes(t *testing.T) {
	// jmp rel [ap] if [ap-1] != 0, assembled by hand: dst [ap-1],
	// op0 [fp-1], op1 [ap+0], pc_update jnz, res raw bits zero.
	var flags uint64 = 1<<op0RegBit | 4<<op1SrcOff | 4<<pcOff
	enc := flags<<48 | 0x8000_7fff_7fff

	inst, err := DecodeInstruction(enc)
	require.NoError(t, err)
	require.Equal(t, PcUpdateJnz, inst.PcUpdate)
	require.Equal(t, ResUnconstrained, inst.Res,
		"zero res bits mean unconstrained under jnz")
}

func TestDecodeErrors(t *testing.T) {
	// Start from a valid word and poison one flag group at a time.
	base := uint64(encStoreImm)

	t.Run("high bit", func(t *testing.T) {
		_, err := DecodeInstruction(base | 1<<63)
		require.ErrorIs(t, err, ErrHighBitSet)
	})
	t.Run("op1 source", func(t *testing.T) {
		_, err := DecodeInstruction(base | 7<<(48+op1SrcOff))
		require.ErrorIs(t, err, ErrInvalidOp1Src)
	})
	t.Run("res logic", func(t *testing.T) {
		_, err := DecodeInstruction(base | 3<<(48+resOff))
		require.ErrorIs(t, err, ErrInvalidResLogic)
	})
	t.Run("pc update", func(t *testing.T) {
		_, err := DecodeInstruction(base | 7<<(48+pcOff))
		require.ErrorIs(t, err, ErrInvalidPcUpdate)
	})
	t.Run("ap update", func(t *testing.T) {
		_, err := DecodeInstruction(base | 3<<(48+apOff))
		require.ErrorIs(t, err, ErrInvalidApUpdate)
	})
	t.Run("opcode", func(t *testing.T) {
		_, err := DecodeInstruction(base | 7<<(48+opcodeOff))
		require.ErrorIs(t, err, ErrInvalidOpcode)
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, enc := range []uint64{encStoreImm, encRet, encCallRel} {
		inst, err := DecodeInstruction(enc)
		require.NoError(t, err)
		require.Equal(t, enc, inst.Encode())
	}
}

func TestOffsetBias(t *testing.T) {
	require.Equal(t, int16(-32768), fromBiased(0))
	require.Equal(t, int16(0), fromBiased(1<<15))
	require.Equal(t, int16(32767), fromBiased(0xffff))
	for _, v := range []int16{-32768, -1, 0, 1, 32767} {
		require.Equal(t, v, fromBiased(uint16(toBiased(v))))
	}
}
