package memory

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairovm/cairovm/felt"
)

func TestRelocatableOffsets(t *testing.T) {
	r := NewRelocatable(2, 10)

	t.Run("add offset", func(t *testing.T) {
		got, err := r.AddOffset(5)
		require.NoError(t, err)
		require.Equal(t, NewRelocatable(2, 15), got)
	})
	t.Run("add overflow", func(t *testing.T) {
		_, err := r.AddOffset(^uint64(0))
		require.ErrorIs(t, err, ErrOffsetOverflow)
	})
	t.Run("sub offset", func(t *testing.T) {
		got, err := r.SubOffset(10)
		require.NoError(t, err)
		require.Equal(t, NewRelocatable(2, 0), got)
	})
	t.Run("sub underflow", func(t *testing.T) {
		_, err := r.SubOffset(11)
		require.ErrorIs(t, err, ErrOffsetUnderflow)
	})
}

func TestRelocatableFeltArithmetic(t *testing.T) {
	r := NewRelocatable(1, 100)

	t.Run("positive displacement", func(t *testing.T) {
		f := felt.New(7)
		got, err := r.AddFelt(&f)
		require.NoError(t, err)
		require.Equal(t, NewRelocatable(1, 107), got)
	})
	t.Run("negative displacement", func(t *testing.T) {
		f := felt.FromSigned(-40)
		got, err := r.AddFelt(&f)
		require.NoError(t, err)
		require.Equal(t, NewRelocatable(1, 60), got)
	})
	t.Run("negative past zero", func(t *testing.T) {
		f := felt.FromSigned(-101)
		_, err := r.AddFelt(&f)
		require.ErrorIs(t, err, ErrOffsetUnderflow)
	})
	t.Run("unrepresentable displacement", func(t *testing.T) {
		f := felt.FromBig(new(big.Int).Lsh(big.NewInt(1), 100))
		_, err := r.AddFelt(&f)
		require.ErrorIs(t, err, ErrOffsetOverflow)
	})
	t.Run("sub felt", func(t *testing.T) {
		f := felt.New(99)
		got, err := r.SubFelt(&f)
		require.NoError(t, err)
		require.Equal(t, NewRelocatable(1, 1), got)
	})
}

func TestRelocatableSub(t *testing.T) {
	t.Run("same segment", func(t *testing.T) {
		a, b := NewRelocatable(3, 12), NewRelocatable(3, 5)
		d, err := a.Sub(b)
		require.NoError(t, err)
		want := felt.New(7)
		require.True(t, d.Equal(&want))
	})
	t.Run("negative distance", func(t *testing.T) {
		a, b := NewRelocatable(3, 5), NewRelocatable(3, 12)
		d, err := a.Sub(b)
		require.NoError(t, err)
		want := felt.FromSigned(-7)
		require.True(t, d.Equal(&want))
	})
	t.Run("segment mismatch", func(t *testing.T) {
		a, b := NewRelocatable(3, 5), NewRelocatable(4, 5)
		_, err := a.Sub(b)
		require.ErrorIs(t, err, ErrSegmentMismatch)
	})
}

func TestRelocatableString(t *testing.T) {
	require.Equal(t, "2:17", NewRelocatable(2, 17).String())
}
