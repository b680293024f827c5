package autodiff_test

import (
	"math"
	"testing"

	"github.com/meadow-ml/meadow/internal/autodiff"
	"github.com/meadow-ml/meadow/internal/backend/cpu"
	"github.com/meadow-ml/meadow/internal/tensor"
)

func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	expected := "Autodiff(CPU)"
	if backend.Name() != expected {
		t.Errorf("Name() = %s, want %s", backend.Name(), expected)
	}
}

func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	if tape.IsRecording() {
		t.Error("tape should not be recording initially")
	}
	tape.StartRecording()
	if !tape.IsRecording() {
		t.Error("tape should be recording after StartRecording()")
	}
	tape.StopRecording()
	if tape.IsRecording() {
		t.Error("tape should not be recording after StopRecording()")
	}
}

func TestTape_Truncate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	x := raw64(t, []float64{2, 3}, tensor.Shape{2})
	backend.Mul(x, x)
	mark := tape.NumOps()

	backend.Add(x, x)
	backend.Mul(x, x)
	if tape.NumOps() != mark+2 {
		t.Fatalf("NumOps() = %d, want %d", tape.NumOps(), mark+2)
	}

	tape.Truncate(mark)
	if tape.NumOps() != mark {
		t.Errorf("NumOps() after Truncate = %d, want %d", tape.NumOps(), mark)
	}
	if !tape.IsRecording() {
		t.Error("Truncate must preserve recording state")
	}

	// Out-of-range marks leave the tape alone.
	tape.Truncate(-1)
	tape.Truncate(mark + 10)
	if tape.NumOps() != mark {
		t.Errorf("NumOps() after out-of-range Truncate = %d, want %d", tape.NumOps(), mark)
	}

	// The surviving prefix still backpropagates.
	y := backend.Mul(x, x)
	grads := autodiff.Backward(y, backend)
	g := grads[x]
	if g == nil {
		t.Fatal("no gradient for x")
	}
	want := []float64{4, 6}
	for i, v := range g.AsFloat64() {
		if !closeEnough(v, want[i], 1e-12) {
			t.Errorf("grad[%d] = %f, want %f", i, v, want[i])
		}
	}
}

func raw64(t *testing.T, data []float64, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	x := tensor.RawZeros(shape, tensor.Float64, tensor.CPU)
	copy(x.AsFloat64(), data)
	return x
}

func closeEnough(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// y = x*x, dy/dx = 2x.
func TestBackward_MulGrad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw64(t, []float64{2, 3}, tensor.Shape{2})
	y := backend.Mul(x, x)

	grads := autodiff.Backward(y, backend)
	g := grads[x]
	if g == nil {
		t.Fatal("no gradient for x")
	}
	want := []float64{4, 6}
	for i, w := range want {
		if !closeEnough(g.AsFloat64()[i], w, 1e-12) {
			t.Errorf("grad[%d] = %v, want %v", i, g.AsFloat64()[i], w)
		}
	}
}

// Broadcast gradients reduce back to the original operand shape.
func TestBackward_BroadcastReduces(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := raw64(t, []float64{10, 20, 30}, tensor.Shape{3})
	y := backend.Add(x, b)

	grads := autodiff.Backward(y, backend)
	gb := grads[b]
	if gb == nil {
		t.Fatal("no gradient for broadcast operand")
	}
	if !gb.Shape().Equal(tensor.Shape{3}) {
		t.Fatalf("grad shape = %v, want [3]", gb.Shape())
	}
	for i, w := range []float64{2, 2, 2} {
		if !closeEnough(gb.AsFloat64()[i], w, 1e-12) {
			t.Errorf("grad[%d] = %v, want %v", i, gb.AsFloat64()[i], w)
		}
	}
}

func TestBackward_MatMulGrad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a := raw64(t, []float64{1, 2, 3, 4}, tensor.Shape{2, 2})
	b := raw64(t, []float64{5, 6, 7, 8}, tensor.Shape{2, 2})
	y := backend.MatMul(a, b)

	grads := autodiff.Backward(y, backend)
	// dL/dA = 1 @ Bᵀ with upstream all-ones.
	wantA := []float64{11, 15, 11, 15}
	wantB := []float64{4, 4, 6, 6}
	for i := range wantA {
		if !closeEnough(grads[a].AsFloat64()[i], wantA[i], 1e-12) {
			t.Errorf("gradA[%d] = %v, want %v", i, grads[a].AsFloat64()[i], wantA[i])
		}
		if !closeEnough(grads[b].AsFloat64()[i], wantB[i], 1e-12) {
			t.Errorf("gradB[%d] = %v, want %v", i, grads[b].AsFloat64()[i], wantB[i])
		}
	}
}

// Finite-difference check through a chain of recorded operations:
// f(x) = sum(exp(-0.5 * x * x)).
func TestBackward_FiniteDifference(t *testing.T) {
	forward := func(backend tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor {
		sq := backend.Mul(x, x)
		return backend.Exp(backend.MulScalar(sq, -0.5))
	}

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	xData := []float64{0.3, -1.1, 0.7}
	x := raw64(t, xData, tensor.Shape{3})
	y := forward(backend, x)

	grads := autodiff.Backward(y, backend)
	g := grads[x].AsFloat64()

	plain := cpu.New()
	const h = 1e-6
	for i := range xData {
		bumped := append([]float64{}, xData...)
		bumped[i] += h
		xp := raw64(t, bumped, tensor.Shape{3})
		bumped[i] -= 2 * h
		xm := raw64(t, bumped, tensor.Shape{3})

		fp, fm := 0.0, 0.0
		for _, v := range forward(plain, xp).AsFloat64() {
			fp += v
		}
		for _, v := range forward(plain, xm).AsFloat64() {
			fm += v
		}
		numeric := (fp - fm) / (2 * h)
		if !closeEnough(g[i], numeric, 1e-5) {
			t.Errorf("grad[%d] = %v, finite difference %v", i, g[i], numeric)
		}
	}
}

// BackwardFrom seeds several forward tensors at once and accumulates
// where their paths meet.
func TestBackwardFrom_MultipleSeeds(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	x := raw64(t, []float64{1, 2}, tensor.Shape{2})
	a := backend.MulScalar(x, 2) // da/dx = 2
	b := backend.MulScalar(x, 3) // db/dx = 3
	tape.StopRecording()

	ones := tensor.RawOnes(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	grads := tape.BackwardFrom(map[*tensor.RawTensor]*tensor.RawTensor{
		a: ones,
		b: ones,
	}, backend)

	g := grads[x]
	if g == nil {
		t.Fatal("no gradient for x")
	}
	for i := 0; i < 2; i++ {
		if !closeEnough(g.AsFloat64()[i], 5, 1e-12) {
			t.Errorf("grad[%d] = %v, want 5", i, g.AsFloat64()[i])
		}
	}
}

// Structural ops must route gradients back through their inverses.
func TestBackward_StructuralOps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := raw64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	y := backend.Narrow(x, 0, 1, 2)          // rows 1..2
	z := backend.Transpose(y)                // (2, 2)
	w := backend.Repeat(z, []int{2, 1})      // (4, 2)
	v := backend.IndexSelect(w, 0, []int{0}) // (1, 2)

	grads := autodiff.Backward(v, backend)
	g := grads[x]
	if g == nil {
		t.Fatal("no gradient for x")
	}
	if !g.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("grad shape = %v, want [3 2]", g.Shape())
	}
	// Row 0 of x was never touched.
	for i := 0; i < 2; i++ {
		if g.AsFloat64()[i] != 0 {
			t.Errorf("untouched grad[%d] = %v, want 0", i, g.AsFloat64()[i])
		}
	}
	// Some gradient must reach the selected rows.
	sum := 0.0
	for _, v := range g.AsFloat64()[2:] {
		sum += v
	}
	if sum == 0 {
		t.Error("no gradient flowed to narrowed rows")
	}
}

func TestPaused_RestoresRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	restore := autodiff.Paused(backend)
	if backend.Tape().IsRecording() {
		t.Error("tape should be paused")
	}
	restore()
	if !backend.Tape().IsRecording() {
		t.Error("tape should resume recording after restore")
	}
}
