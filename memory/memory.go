// Package memory implements the write-once, segmented memory of the Cairo
// machine, together with its address and word types.
package memory

import (
	"encoding/json"
	"fmt"
)

type cell struct {
	word   Word
	filled bool
}

// Memory maps relocatable addresses to words. Cells are partitioned into
// numbered segments; a cell, once filled, may only be rewritten with an equal
// value. Reads of empty or out-of-range cells report absence rather than
// failure, so callers can distinguish "unknown operand" from a hard error.
type Memory struct {
	segments [][]cell
}

func NewMemory() *Memory {
	return &Memory{}
}

// NumSegments returns how many segments have been allocated.
func (m *Memory) NumSegments() int {
	return len(m.segments)
}

// AddSegment allocates a fresh empty segment and returns its base address.
func (m *Memory) AddSegment() Relocatable {
	m.segments = append(m.segments, nil)
	return Relocatable{Segment: uint64(len(m.segments) - 1)}
}

// SegmentSize returns the number of cells the segment has grown to: one past
// its highest written offset, counting the empty gaps sparse writes leave
// below it.
func (m *Memory) SegmentSize(segment uint64) uint64 {
	if segment >= uint64(len(m.segments)) {
		return 0
	}
	return uint64(len(m.segments[segment]))
}

// Insert stores word at addr. The segment must exist. An occupied cell accepts
// the write only when the new value equals the stored one; the deduction
// cascade relies on such re-derivations succeeding.
func (m *Memory) Insert(addr Relocatable, word Word) error {
	if addr.Segment >= uint64(len(m.segments)) {
		return fmt.Errorf("%w: %v with %d segments", ErrSegmentOutOfBounds, addr, len(m.segments))
	}
	seg := m.segments[addr.Segment]
	for uint64(len(seg)) <= addr.Offset {
		seg = append(seg, cell{})
	}
	m.segments[addr.Segment] = seg
	c := &seg[addr.Offset]
	if c.filled {
		if c.word.Equal(word) {
			return nil
		}
		return fmt.Errorf("%w: %v holds %v, refusing %v", ErrWriteOnce, addr, c.word, word)
	}
	c.word = word
	c.filled = true
	return nil
}

// Get returns the word at addr. The second return is false when the cell is
// empty or the address lies outside every allocated segment.
func (m *Memory) Get(addr Relocatable) (Word, bool) {
	if addr.Segment >= uint64(len(m.segments)) {
		return Word{}, false
	}
	seg := m.segments[addr.Segment]
	if addr.Offset >= uint64(len(seg)) {
		return Word{}, false
	}
	c := seg[addr.Offset]
	return c.word, c.filled
}

// LoadData inserts data sequentially starting at addr and returns the first
// address past the loaded range.
func (m *Memory) LoadData(addr Relocatable, data []Word) (Relocatable, error) {
	for i, w := range data {
		target, err := addr.AddOffset(uint64(i))
		if err != nil {
			return Relocatable{}, err
		}
		if err := m.Insert(target, w); err != nil {
			return Relocatable{}, err
		}
	}
	return addr.AddOffset(uint64(len(data)))
}

type segmentJSON []*Word

func (m *Memory) MarshalJSON() ([]byte, error) {
	segments := make([]segmentJSON, len(m.segments))
	for i, seg := range m.segments {
		out := make(segmentJSON, len(seg))
		for j := range seg {
			if seg[j].filled {
				w := seg[j].word
				out[j] = &w
			}
		}
		segments[i] = out
	}
	return json.Marshal(segments)
}

func (m *Memory) UnmarshalJSON(data []byte) error {
	var segments []segmentJSON
	if err := json.Unmarshal(data, &segments); err != nil {
		return err
	}
	m.segments = nil
	for i, seg := range segments {
		base := m.AddSegment()
		for j, w := range seg {
			if w == nil {
				continue
			}
			if err := m.Insert(Relocatable{Segment: base.Segment, Offset: uint64(j)}, *w); err != nil {
				return fmt.Errorf("segment %d cell %d: %w", i, j, err)
			}
		}
	}
	return nil
}
