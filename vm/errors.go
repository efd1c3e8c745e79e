package vm

import "errors"

// Fetch and decode failures.
var (
	ErrEndOfInstructions   = errors.New("no instruction at pc")
	ErrInstructionEncoding = errors.New("instruction word is not a 64-bit field element")
	ErrHighBitSet          = errors.New("instruction high bit set")
	ErrInvalidOp1Src       = errors.New("invalid op1 source")
	ErrInvalidResLogic     = errors.New("invalid res logic")
	ErrInvalidPcUpdate     = errors.New("invalid pc update")
	ErrInvalidApUpdate     = errors.New("invalid ap update")
	ErrInvalidOpcode       = errors.New("invalid opcode")
)

// Semantic failures raised by opcode assertions and register updates.
var (
	ErrUnconstrainedRes     = errors.New("res is unconstrained")
	ErrAssertEqMismatch     = errors.New("assert-eq operands differ")
	ErrInvalidCallOp0       = errors.New("call op0 is not the return pc")
	ErrInvalidCallDst       = errors.New("call dst is not the caller fp")
	ErrUnconstrainedJnzDst  = errors.New("jnz dst is unknown")
	ErrInvalidJumpTarget    = errors.New("jump target is not an address")
	ErrInvalidJumpRelTarget = errors.New("relative jump offset is not a field element")
	ErrInvalidJnzOp1        = errors.New("jnz branch offset is not a field element")
	ErrInvalidFpTarget      = errors.New("fp target is not an address")
)
