package tensor_test

import (
	"errors"
	"testing"

	"github.com/meadow-ml/meadow/internal/backend/cpu"
	"github.com/meadow-ml/meadow/internal/tensor"
)

func rangeTensor(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw := tensor.RawZeros(shape, tensor.Float64, tensor.CPU)
	data := raw.AsFloat64()
	for i := range data {
		data[i] = float64(i)
	}
	return raw
}

func TestIndexRaw_UnitSlice(t *testing.T) {
	b := cpu.New()
	x := rangeTensor(t, tensor.Shape{4, 3})

	out, err := tensor.IndexRaw(x, b, []tensor.Index{tensor.Slice{Start: 1, Stop: 3, Step: 1}})
	if err != nil {
		t.Fatalf("IndexRaw: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("shape = %v, want [2 3]", out.Shape())
	}
	if got := out.AsFloat64()[0]; got != 3 {
		t.Errorf("first element = %v, want 3", got)
	}
}

func TestIndexRaw_SteppedSliceAndInts(t *testing.T) {
	b := cpu.New()
	x := rangeTensor(t, tensor.Shape{6, 2})

	out, err := tensor.IndexRaw(x, b, []tensor.Index{tensor.Slice{Start: 0, Stop: 6, Step: 2}})
	if err != nil {
		t.Fatalf("IndexRaw stepped: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("stepped shape = %v, want [3 2]", out.Shape())
	}
	if got := out.AsFloat64()[2]; got != 4 {
		t.Errorf("row 1 col 0 = %v, want 4", got)
	}

	out, err = tensor.IndexRaw(x, b, []tensor.Index{tensor.Ints{5, 0}})
	if err != nil {
		t.Fatalf("IndexRaw ints: %v", err)
	}
	if got := out.AsFloat64()[0]; got != 10 {
		t.Errorf("ints[0] row start = %v, want 10", got)
	}
}

func TestIndexRaw_MissingTrailingIndices(t *testing.T) {
	b := cpu.New()
	x := rangeTensor(t, tensor.Shape{2, 3, 4})

	out, err := tensor.IndexRaw(x, b, []tensor.Index{tensor.Slice{Start: 1, Stop: 2, Step: 1}})
	if err != nil {
		t.Fatalf("IndexRaw: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{1, 3, 4}) {
		t.Fatalf("shape = %v, want [1 3 4]", out.Shape())
	}
}

func TestIndexRaw_RankMismatch(t *testing.T) {
	b := cpu.New()
	x := rangeTensor(t, tensor.Shape{4, 3})

	idx := []tensor.Index{tensor.FullSlice(), tensor.FullSlice(), tensor.FullSlice()}
	_, err := tensor.IndexRaw(x, b, idx)
	var rank *tensor.RankMismatchError
	if !errors.As(err, &rank) {
		t.Fatalf("err = %v, want RankMismatchError", err)
	}
	if rank.Indices != 3 || rank.Dims != 2 {
		t.Errorf("RankMismatchError = %+v, want Indices=3 Dims=2", rank)
	}
}

// An out-of-range hit on a size-1 dimension is how the kernel getitem
// path discovers a tensor needs broadcasting before indexing.
func TestIndexRaw_OutOfRangeCarriesSize(t *testing.T) {
	b := cpu.New()
	x := rangeTensor(t, tensor.Shape{1, 3})

	_, err := tensor.IndexRaw(x, b, []tensor.Index{tensor.Ints{2}})
	var oor *tensor.OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("err = %v, want OutOfRangeError", err)
	}
	if oor.Size != 1 || oor.Index != 2 {
		t.Errorf("OutOfRangeError = %+v, want Size=1 Index=2", oor)
	}
}

func TestIsFullIndex(t *testing.T) {
	if !tensor.IsFullIndex(tensor.FullSlice()) {
		t.Error("FullSlice should be a full index")
	}
	if tensor.IsFullIndex(tensor.Slice{Start: 0, Stop: 3, Step: 1}) {
		t.Error("bounded slice should not be a full index")
	}
	if tensor.IsFullIndex(tensor.Ints{0, 1}) {
		t.Error("ints should not be a full index")
	}
}
