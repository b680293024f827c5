package autodiff

import "github.com/meadow-ml/meadow/internal/tensor"

// TapeHolder is implemented by backends that carry a gradient tape.
// The checkpointed gradient path uses it to pause and resume recording
// without knowing the concrete backend type.
type TapeHolder interface {
	GetTape() *GradientTape
}

// TapeOf extracts the gradient tape from a backend, if it has one.
func TapeOf(b tensor.Backend) (*GradientTape, bool) {
	holder, ok := b.(TapeHolder)
	if !ok {
		return nil, false
	}
	return holder.GetTape(), true
}

// Paused stops recording on the backend's tape, if it has one, and
// returns a function restoring the previous recording state.
//
// Usage:
//
//	defer autodiff.Paused(backend)()
func Paused(b tensor.Backend) func() {
	tape, ok := TapeOf(b)
	if !ok || !tape.IsRecording() {
		return func() {}
	}
	tape.StopRecording()
	return tape.StartRecording
}

// Backward runs reverse-mode differentiation from the given output,
// seeding its gradient with ones. Returns the accumulated gradients
// keyed by forward-pass tensor.
func Backward(output *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	tape, ok := TapeOf(backend)
	if !ok {
		return make(map[*tensor.RawTensor]*tensor.RawTensor)
	}
	seed := tensor.RawOnes(output.Shape(), output.DType(), output.Device())
	return tape.BackwardFrom(map[*tensor.RawTensor]*tensor.RawTensor{output: seed}, backend)
}
