package cpu_test

import (
	"math"
	"testing"

	"github.com/meadow-ml/meadow/internal/backend/cpu"
	"github.com/meadow-ml/meadow/internal/tensor"
)

func raw64(t *testing.T, data []float64, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	x := tensor.RawZeros(shape, tensor.Float64, tensor.CPU)
	copy(x.AsFloat64(), data)
	return x
}

func assertClose(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("element %d = %v, want %v (tol %v)", i, got[i], want[i], tol)
		}
	}
}

func TestAdd_Broadcast(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	y := raw64(t, []float64{10, 20, 30}, tensor.Shape{3})

	out := b.Add(x, y)
	if !out.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	assertClose(t, out.AsFloat64(), []float64{11, 22, 33, 14, 25, 36}, 0)
}

func TestMatMul(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := raw64(t, []float64{5, 6, 7, 8}, tensor.Shape{2, 2})

	out := b.MatMul(x, y)
	assertClose(t, out.AsFloat64(), []float64{19, 22, 43, 50}, 1e-12)
}

func TestBatchMatMul(t *testing.T) {
	b := cpu.New()
	// Two batches of 2x2, second batch is the identity.
	x := raw64(t, []float64{1, 2, 3, 4, 1, 0, 0, 1}, tensor.Shape{2, 2, 2})
	y := raw64(t, []float64{1, 0, 0, 1, 5, 6, 7, 8}, tensor.Shape{2, 2, 2})

	out := b.BatchMatMul(x, y)
	if !out.Shape().Equal(tensor.Shape{2, 2, 2}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	assertClose(t, out.AsFloat64(), []float64{1, 2, 3, 4, 5, 6, 7, 8}, 1e-12)
}

func TestExpSqrtScalars(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{0, 1, 4}, tensor.Shape{3})

	assertClose(t, b.Exp(x).AsFloat64(), []float64{1, math.E, math.Exp(4)}, 1e-12)
	assertClose(t, b.Sqrt(x).AsFloat64(), []float64{0, 1, 2}, 1e-12)
	assertClose(t, b.MulScalar(x, -2).AsFloat64(), []float64{0, -2, -8}, 0)
	assertClose(t, b.AddScalar(x, 1.5).AsFloat64(), []float64{1.5, 2.5, 5.5}, 0)
}

func TestSumDim(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	out := b.SumDim(x, 1, false)
	if !out.Shape().Equal(tensor.Shape{2}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	assertClose(t, out.AsFloat64(), []float64{6, 15}, 0)

	kept := b.SumDim(x, -1, true)
	if !kept.Shape().Equal(tensor.Shape{2, 1}) {
		t.Fatalf("keepDim shape = %v", kept.Shape())
	}

	dim0 := b.SumDim(x, 0, false)
	assertClose(t, dim0.AsFloat64(), []float64{5, 7, 9}, 0)
}

func TestTranspose(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	out := b.Transpose(x)
	if !out.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	assertClose(t, out.AsFloat64(), []float64{1, 4, 2, 5, 3, 6}, 0)
}

func TestTranspose_Axes(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, tensor.Shape{2, 2, 2})

	// Swap the last two dims only.
	out := b.Transpose(x, 0, 2, 1)
	assertClose(t, out.AsFloat64(), []float64{0, 2, 1, 3, 4, 6, 5, 7}, 0)
}

func TestExpand(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2}, tensor.Shape{1, 2})

	out := b.Expand(x, tensor.Shape{3, 2})
	assertClose(t, out.AsFloat64(), []float64{1, 2, 1, 2, 1, 2}, 0)
}

func TestNarrow(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})

	out := b.Narrow(x, 0, 1, 2)
	if !out.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	assertClose(t, out.AsFloat64(), []float64{3, 4, 5, 6}, 0)
}

func TestCatSplitRoundTrip(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, tensor.Shape{5, 2})

	chunks := b.Split(x, 2, 0)
	if len(chunks) != 3 {
		t.Fatalf("split into %d chunks, want 3", len(chunks))
	}
	if !chunks[2].Shape().Equal(tensor.Shape{1, 2}) {
		t.Fatalf("last chunk shape = %v, want [1 2]", chunks[2].Shape())
	}

	back := b.Cat(chunks, 0)
	assertClose(t, back.AsFloat64(), x.AsFloat64(), 0)
}

func TestRepeat(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2}, tensor.Shape{1, 2})

	out := b.Repeat(x, []int{2, 1})
	if !out.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	assertClose(t, out.AsFloat64(), []float64{1, 2, 1, 2}, 0)
}

func TestIndexSelect(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})

	out := b.IndexSelect(x, 0, []int{2, 0})
	assertClose(t, out.AsFloat64(), []float64{5, 6, 1, 2}, 0)
}

func TestUnsqueezeSqueeze(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1, 2, 3}, tensor.Shape{3})

	up := b.Unsqueeze(x, 0)
	if !up.Shape().Equal(tensor.Shape{1, 3}) {
		t.Fatalf("unsqueeze shape = %v", up.Shape())
	}
	down := b.Squeeze(up, 0)
	if !down.Shape().Equal(tensor.Shape{3}) {
		t.Fatalf("squeeze shape = %v", down.Shape())
	}
}

func TestCast_Float16RoundTrip(t *testing.T) {
	b := cpu.New()
	x := raw64(t, []float64{1.5, -2.25, 0}, tensor.Shape{3})

	half := b.Cast(x, tensor.Float16)
	if half.DType() != tensor.Float16 {
		t.Fatalf("dtype = %v, want Float16", half.DType())
	}
	back := b.Cast(half, tensor.Float64)
	assertClose(t, back.AsFloat64(), []float64{1.5, -2.25, 0}, 1e-3)
}
