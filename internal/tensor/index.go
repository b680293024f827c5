package tensor

import "fmt"

// Index selects elements along a single tensor dimension. The two concrete
// forms mirror the indexing protocol of the kernel subsystem: contiguous
// ranges (Slice) and arbitrary index lists (Ints). Ellipsis is accepted only
// by the top-level kernel index operator, which expands it before any
// per-dimension indexing happens.
type Index interface {
	isIndex()
}

// Slice selects the half-open range [Start, Stop) with the given Step.
// Stop < 0 means "through the end of the dimension"; Step 0 is treated as 1.
type Slice struct {
	Start int
	Stop  int
	Step  int
}

func (Slice) isIndex() {}

// FullSlice returns the slice selecting an entire dimension.
func FullSlice() Slice {
	return Slice{Start: 0, Stop: -1, Step: 1}
}

// IsFull reports whether the slice selects an entire dimension unchanged.
func (s Slice) IsFull() bool {
	return s.Start == 0 && s.Stop < 0 && (s.Step == 0 || s.Step == 1)
}

// Resolve clamps the slice against a concrete dimension size, returning the
// effective start, stop and step.
func (s Slice) Resolve(dim int) (start, stop, step int) {
	start = s.Start
	stop = s.Stop
	step = s.Step
	if step == 0 {
		step = 1
	}
	if stop < 0 {
		stop = dim
	}
	return start, stop, step
}

// Ints selects an arbitrary list of positions along a dimension.
type Ints []int

func (Ints) isIndex() {}

type ellipsisIndex struct{}

func (ellipsisIndex) isIndex() {}

// Ellipsis stands for "all leading batch dimensions" in a top-level index
// expression. It is not a valid per-dimension index.
var Ellipsis Index = ellipsisIndex{}

// IsFullIndex reports whether ix is a slice selecting a whole dimension.
func IsFullIndex(ix Index) bool {
	s, ok := ix.(Slice)
	return ok && s.IsFull()
}

// RankMismatchError reports an index expression with more per-dimension
// indices than the tensor has dimensions. The kernel indexing path treats
// this as "the tensor is missing broadcast batch dimensions" and retries
// after expanding.
type RankMismatchError struct {
	Indices int
	Dims    int
}

func (e *RankMismatchError) Error() string {
	return fmt.Sprintf("index expression has %d per-dimension indices, tensor has %d dimensions", e.Indices, e.Dims)
}

// OutOfRangeError reports an index outside a dimension's bounds. Size is the
// actual dimension size: a caller holding a broadcast view can recover when
// Size == 1 by expanding first.
type OutOfRangeError struct {
	Dim   int
	Size  int
	Index int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range for dimension %d (size %d)", e.Index, e.Dim, e.Size)
}

// IndexRaw applies per-dimension indices to x, starting at dimension 0.
// Missing trailing indices select their dimensions in full. Slices with unit
// step become Narrow views; stepped slices and Ints become IndexSelect.
//
// Unlike the backend primitives this returns errors instead of panicking:
// the kernel getitem path probes with possibly-too-long index lists and
// reacts to the failure kind.
func IndexRaw(x *RawTensor, b Backend, idx []Index) (*RawTensor, error) {
	shape := x.Shape()
	if len(idx) > len(shape) {
		return nil, &RankMismatchError{Indices: len(idx), Dims: len(shape)}
	}

	out := x
	for d, ix := range idx {
		dimSize := out.Shape()[d]
		switch v := ix.(type) {
		case Slice:
			if v.IsFull() {
				continue
			}
			start, stop, step := v.Resolve(dimSize)
			if start < 0 || start > dimSize {
				return nil, &OutOfRangeError{Dim: d, Size: dimSize, Index: start}
			}
			if stop < start || stop > dimSize {
				return nil, &OutOfRangeError{Dim: d, Size: dimSize, Index: stop}
			}
			if step == 1 {
				out = b.Narrow(out, d, start, stop-start)
				continue
			}
			var picks []int
			for i := start; i < stop; i += step {
				picks = append(picks, i)
			}
			out = b.IndexSelect(out, d, picks)
		case Ints:
			for _, i := range v {
				if i < 0 || i >= dimSize {
					return nil, &OutOfRangeError{Dim: d, Size: dimSize, Index: i}
				}
			}
			out = b.IndexSelect(out, d, v)
		default:
			return nil, fmt.Errorf("unsupported index %T at dimension %d (ellipsis must be expanded by the caller)", ix, d)
		}
	}
	return out, nil
}
