package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
//
// For point batches the convention is (...batch dims..., num_points,
// feature_dim); for kernel matrices it is (...batch dims..., rows, cols).
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Batch returns the leading batch dimensions, i.e. everything except the
// trailing two dimensions. A 2D or smaller shape has an empty batch.
func (s Shape) Batch() Shape {
	if len(s) <= 2 {
		return Shape{}
	}
	return s[:len(s)-2].Clone()
}

// String returns a human-readable form like "[2 3 4]".
func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// BroadcastShapes implements NumPy-style broadcasting rules over any number
// of shapes.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcast shape, a flag indicating whether any input differs
// from it, and an error if the shapes are incompatible. Kernel size
// resolution broadcasts three shapes at once (x1 batch, x2 batch, kernel
// batch), which is why this takes a variadic list rather than a pair.
func BroadcastShapes(shapes ...Shape) (Shape, bool, error) {
	maxLen := 0
	for _, s := range shapes {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	result := make(Shape, maxLen)
	needsBroadcast := false

	for i := 0; i < maxLen; i++ {
		dim := 1
		for _, s := range shapes {
			idx := len(s) - 1 - i
			if idx < 0 {
				continue
			}
			d := s[idx]
			switch {
			case d == dim || d == 1:
				// compatible, keep dim
			case dim == 1:
				dim = d
			default:
				return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v (dimension %d: %d vs %d)",
					shapes, maxLen-1-i, dim, d)
			}
		}
		result[maxLen-1-i] = dim
	}

	for _, s := range shapes {
		if !s.Equal(result) {
			needsBroadcast = true
			break
		}
	}
	return result, needsBroadcast, nil
}
