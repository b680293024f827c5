package kernel

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/meadow-ml/meadow/internal/autodiff"
	"github.com/meadow-ml/meadow/internal/tensor"
	"github.com/meadow-ml/meadow/settings"
)

// CheckpointedMatMul computes K(x1, x2) · rhs without ever holding the
// full kernel matrix: x1 is split into row chunks of chunkRows points,
// each chunk's kernel block is evaluated, multiplied, and released, and
// the partial products are concatenated along the row dimension.
//
// Gradient recording and lazy evaluation are suspended for the whole
// product; gradients through a checkpointed matrix go through
// CheckpointedBilinearDerivative instead.
func (t *LazyKernelTensor) CheckpointedMatMul(rhs *tensor.RawTensor, chunkRows int) (*tensor.RawTensor, error) {
	if chunkRows <= 0 {
		return nil, &CheckpointingDisabledError{Op: "matmul"}
	}
	defer settings.SetLazilyEvaluateKernels(false)()
	defer autodiff.Paused(t.backend)()

	rowDim := len(t.x1.Shape()) - 2
	numPoints := t.x1.Shape()[rowDim]
	t.logChunking("matmul", numPoints, chunkRows)

	var parts []*tensor.RawTensor
	for start := 0; start < numPoints; start += chunkRows {
		length := min(chunkRows, numPoints-start)
		chunk := t.backend.Narrow(t.x1, rowDim, start, length)

		val, err := t.kern.Invoke(chunk, t.x2, false, t.lastDimIsBatch, t.extra)
		if err != nil {
			return nil, errors.Wrapf(err, "checkpointed matmul: kernel failed on rows [%d, %d)", start, start+length)
		}
		part, err := val.Operator(t.backend).MatMul(rhs)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	catDim := len(parts[0].Shape()) - 2
	if len(parts[0].Shape()) == 1 {
		catDim = 0
	}
	return t.backend.Cat(parts, catDim), nil
}

// CheckpointedBilinearDerivative computes the gradients of
// tr(leftᵀ · K · right) with respect to Representation(), that is x1,
// x2, and the kernel parameters, one row chunk at a time.
//
// For each chunk, a detached copy of the x1 rows is taken, the kernel
// block for (chunk, x2) is recomputed with gradient recording enabled,
// and the block's bilinear derivative seeds a backward sweep through
// the recording. Chunk gradients for x1 are concatenated; gradients for
// x2 and the parameters accumulate across chunks. Peak memory is
// bounded by the chunk block instead of the full matrix, at the cost of
// recomputing each block once.
func (t *LazyKernelTensor) CheckpointedBilinearDerivative(left, right *tensor.RawTensor, chunkRows int) ([]*tensor.RawTensor, error) {
	if chunkRows <= 0 {
		return nil, &CheckpointingDisabledError{Op: "bilinear derivative"}
	}
	tape, ok := autodiff.TapeOf(t.backend)
	if !ok {
		return nil, errors.New("checkpointed gradients need a backend with a gradient tape")
	}
	defer settings.SetLazilyEvaluateKernels(false)()

	// Recording is switched on only around the per-chunk kernel
	// invocation; everything else here is bookkeeping that must not
	// land on the tape.
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	// Each chunk's recording is consumed by its own backward sweep, so
	// the tape is rewound to this mark once the sweep is done. Without
	// the rewind the tape would grow by one recording per chunk and
	// every later sweep would re-walk the stale entries.
	mark := tape.NumOps()
	defer tape.Truncate(mark)

	rowDim := len(t.x1.Shape()) - 2
	numPoints := t.x1.Shape()[rowDim]
	rowFactor, _ := t.kern.NumOutputsPerInput(t.x1, t.x2)
	t.logChunking("bilinear derivative", numPoints, chunkRows)

	leftDim := len(left.Shape()) - 2
	params := t.kern.Params()

	var x1Grads []*tensor.RawTensor
	var x2Grad *tensor.RawTensor
	paramGrads := make([]*tensor.RawTensor, len(params))

	for start := 0; start < numPoints; start += chunkRows {
		length := min(chunkRows, numPoints-start)

		// Detach the chunk so the backward sweep stops at this copy
		// and its gradient is attributable to these rows alone.
		chunk := t.backend.Narrow(t.x1, rowDim, start, length).DeepClone()
		leftChunk := t.backend.Narrow(left, leftDim, start*rowFactor, length*rowFactor)

		tape.StartRecording()
		val, err := t.kern.Invoke(chunk, t.x2, false, t.lastDimIsBatch, t.extra)
		tape.StopRecording()
		if err != nil {
			return nil, errors.Wrapf(err, "checkpointed bilinear derivative: kernel failed on rows [%d, %d)", start, start+length)
		}

		op := val.Operator(t.backend)
		reps := op.Representation()
		derivs, err := op.BilinearDerivative(leftChunk, right)
		if err != nil {
			return nil, err
		}
		if len(derivs) != len(reps) {
			return nil, errors.Errorf("operator returned %d derivative(s) for %d representation tensor(s)", len(derivs), len(reps))
		}

		seeds := make(map[*tensor.RawTensor]*tensor.RawTensor, len(reps))
		for i, rep := range reps {
			seeds[rep] = derivs[i]
		}
		grads := tape.BackwardFrom(seeds, t.backend)
		tape.Truncate(mark)

		chunkGrad := grads[chunk]
		if chunkGrad == nil {
			chunkGrad = tensor.RawZeros(chunk.Shape(), chunk.DType(), chunk.Device())
		}
		x1Grads = append(x1Grads, chunkGrad)

		if g := grads[t.x2]; g != nil {
			if x2Grad == nil {
				x2Grad = g
			} else {
				x2Grad = t.backend.Add(x2Grad, g)
			}
		}
		for i, p := range params {
			g := grads[p.Value]
			if g == nil {
				continue
			}
			if paramGrads[i] == nil {
				paramGrads[i] = g
			} else {
				paramGrads[i] = t.backend.Add(paramGrads[i], g)
			}
		}
	}

	x1Grad := x1Grads[0]
	if len(x1Grads) > 1 {
		x1Grad = t.backend.Cat(x1Grads, rowDim)
	}
	if x2Grad == nil {
		x2Grad = tensor.RawZeros(t.x2.Shape(), t.x2.DType(), t.x2.Device())
	}
	for i, p := range params {
		if paramGrads[i] == nil {
			paramGrads[i] = tensor.RawZeros(p.Value.Shape(), p.Value.DType(), p.Value.Device())
		}
	}

	out := make([]*tensor.RawTensor, 0, 2+len(params))
	out = append(out, x1Grad, x2Grad)
	out = append(out, paramGrads...)
	return out, nil
}

func (t *LazyKernelTensor) logChunking(op string, numPoints, chunkRows int) {
	if !klog.V(2).Enabled() {
		return
	}
	cols := t.x2.Shape()[len(t.x2.Shape())-2]
	blockBytes := uint64(chunkRows) * uint64(cols) * uint64(t.DType().Size())
	klog.V(2).Infof("checkpointed %s: %d rows in chunks of %d (%s per block)",
		op, numPoints, chunkRows, humanize.Bytes(blockBytes))
}
