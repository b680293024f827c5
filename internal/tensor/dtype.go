// Package tensor provides the core tensor types and operations for the Meadow GP framework.
package tensor

import "github.com/x448/float16"

// DType is a constraint for supported tensor data types.
// It uses Go generics to ensure compile-time type safety.
//
// Float16 is a storage type: covariance data is frequently shipped
// half-precision, but compute backends cast it up before doing math.
type DType interface {
	~float32 | ~float64 | float16.Float16
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	Float16
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	case Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// IsFloatingPoint reports whether the data type supports arithmetic directly.
// Float16 is storage-only and must be cast up before compute.
func (dt DataType) IsFloatingPoint() bool {
	return dt == Float32 || dt == Float64
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case float16.Float16:
		return Float16
	default:
		panic("unsupported type")
	}
}
