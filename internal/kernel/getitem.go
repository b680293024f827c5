package kernel

import (
	"github.com/pkg/errors"

	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// Index applies an index expression to the logical kernel matrix.
//
// The pattern "ellipsis followed by a row slice and a column slice",
// and any expression that resolves to one index per matrix dimension,
// are routed through input rewriting: a new lazy node over sliced
// point batches, without evaluating the kernel. Everything else forces
// evaluation and delegates to the dense operator.
func (t *LazyKernelTensor) Index(idx []tensor.Index) (operator.LinearOperator, error) {
	if rowIdx, colIdx, ok := splitEllipsisRowCol(idx); ok {
		size, err := t.Size()
		if err != nil {
			return nil, err
		}
		batchIdx := make([]tensor.Index, len(size)-2)
		for i := range batchIdx {
			batchIdx[i] = tensor.FullSlice()
		}
		return t.getitem(rowIdx, colIdx, batchIdx)
	}
	if len(idx) > 0 {
		size, err := t.Size()
		if err != nil {
			return nil, err
		}
		// An ellipsis anywhere else is still rewritable: expand it into
		// full selections first, then treat the expression as full-rank.
		// Expansion failures (double ellipsis, too many indices) are
		// genuinely invalid and surface through the evaluated path.
		resolved, expErr := expandEllipsis(idx, len(size))
		if expErr == nil && len(resolved) == len(size) {
			return t.getitem(resolved[len(resolved)-2], resolved[len(resolved)-1], resolved[:len(resolved)-2])
		}
	}
	return t.evaluatedIndex(idx)
}

// splitEllipsisRowCol matches the [..., rows, cols] pattern.
func splitEllipsisRowCol(idx []tensor.Index) (rowIdx, colIdx tensor.Index, ok bool) {
	if len(idx) != 3 || idx[0] != tensor.Ellipsis {
		return nil, nil, false
	}
	return idx[1], idx[2], true
}

// getitem reconstructs the sub-selection of x1, x2, and the kernel's
// batch parameters corresponding to a sub-block of the logical matrix.
// When the index expression is too irregular to translate back onto
// the inputs it falls back to evaluated indexing; that degradation is
// silent, never an error.
func (t *LazyKernelTensor) getitem(rowIdx, colIdx tensor.Index, batchIdx []tensor.Index) (operator.LinearOperator, error) {
	fullIdx := append(append([]tensor.Index{}, batchIdx...), rowIdx, colIdx)

	rowFactor, colFactor := t.kern.NumOutputsPerInput(t.x1, t.x2)

	// Multi-output kernels interleave outputs-per-input groups along
	// rows and columns. Translating an index back onto input points is
	// only possible for contiguous unit-step slices aligned to whole
	// groups; everything else splits a group and must go through the
	// evaluated matrix.
	size, err := t.Size()
	if err != nil {
		return nil, err
	}
	numRows, numCols := size[len(size)-2], size[len(size)-1]

	rowPointIdx, ok := translateOutputIndex(rowIdx, rowFactor, numRows)
	if !ok {
		return t.evaluatedIndex(fullIdx)
	}
	colPointIdx, ok := translateOutputIndex(colIdx, colFactor, numCols)
	if !ok {
		return t.evaluatedIndex(fullIdx)
	}

	// With last-dim-is-batch the last supplied batch index addresses
	// the feature axis; the rest address real batch dimensions.
	featIdx := tensor.Index(tensor.FullSlice())
	if t.lastDimIsBatch {
		if len(batchIdx) == 0 {
			return nil, errors.New("kernel index: last-dim-is-batch matrix needs a batch index for the feature axis")
		}
		featIdx = batchIdx[len(batchIdx)-1]
		batchIdx = batchIdx[:len(batchIdx)-1]
	}

	batch, err := t.inputBatchShape()
	if err != nil {
		return nil, err
	}

	x1New, err := t.indexInput(t.x1, append(append([]tensor.Index{}, batchIdx...), rowPointIdx, featIdx), batch)
	if err != nil {
		return nil, err
	}
	x2New, err := t.indexInput(t.x2, append(append([]tensor.Index{}, batchIdx...), colPointIdx, featIdx), batch)
	if err != nil {
		return nil, err
	}

	kernNew, fallback, err := t.indexKernelBatch(batchIdx, batch)
	if err != nil {
		return nil, err
	}
	if fallback {
		return t.evaluatedIndex(fullIdx)
	}

	return NewLazyKernelTensor(x1New, x2New, kernNew, t.backend, t.carryOpts()...)
}

// translateOutputIndex maps an index on matrix rows or columns to an
// index on input points, dividing slice bounds by the outputs-per-input
// factor. Returns ok=false when the translation would split an output
// group: non-slice indices, non-unit steps, or bounds that are not
// whole multiples of the factor.
func translateOutputIndex(idx tensor.Index, factor, dimSize int) (tensor.Index, bool) {
	if factor == 1 {
		// One output per input point: any index maps straight onto the
		// point dimension.
		return idx, true
	}

	s, ok := idx.(tensor.Slice)
	if !ok {
		return nil, false
	}
	if s.IsFull() {
		return s, true
	}
	start, stop, step := s.Resolve(dimSize)
	if step != 1 || start%factor != 0 || stop%factor != 0 {
		return nil, false
	}
	return tensor.Slice{Start: start / factor, Stop: stop / factor, Step: 1}, true
}

// indexInput applies the index to a point batch, reactively expanding
// to the broadcast batch shape when the batch indices address
// dimensions the input does not actually have. The expand only happens
// on failure so the common already-matching case stays cheap.
func (t *LazyKernelTensor) indexInput(x *tensor.RawTensor, idx []tensor.Index, batch tensor.Shape) (*tensor.RawTensor, error) {
	out, err := tensor.IndexRaw(x, t.backend, idx)
	if err == nil {
		return out, nil
	}
	if !indexNeedsExpand(err) {
		return nil, err
	}
	shape := x.Shape()
	full := append(batch.Clone(), shape[len(shape)-2], shape[len(shape)-1])
	expanded := t.backend.Expand(x, full)
	return tensor.IndexRaw(expanded, t.backend, idx)
}

// indexNeedsExpand distinguishes "the tensor is missing broadcast batch
// dimensions" (recoverable by expanding) from a genuinely invalid
// index. Rank mismatches and out-of-range hits on size-1 dimensions are
// the broadcast cases.
func indexNeedsExpand(err error) bool {
	var rank *tensor.RankMismatchError
	if errors.As(err, &rank) {
		return true
	}
	var oor *tensor.OutOfRangeError
	return errors.As(err, &oor) && oor.Size == 1
}

// indexKernelBatch sub-selects the kernel's own batch parameters. When
// every batch index is the trivial full selection the existing kernel
// is reused unchanged. fallback=true means the kernel cannot be
// batch-indexed and the caller should go through evaluated indexing.
func (t *LazyKernelTensor) indexKernelBatch(batchIdx []tensor.Index, batch tensor.Shape) (kern Kernel, fallback bool, err error) {
	allFull := true
	for _, ix := range batchIdx {
		if !tensor.IsFullIndex(ix) {
			allFull = false
			break
		}
	}
	if allFull {
		return t.kern, false, nil
	}

	indexer, ok := t.kern.(BatchIndexer)
	if !ok {
		return nil, true, nil
	}
	kern, err = indexer.IndexBatch(batchIdx)
	if err == nil {
		return kern, false, nil
	}
	if !indexNeedsExpand(err) {
		return nil, false, err
	}
	expander, ok := t.kern.(BatchExpander)
	if !ok {
		return nil, true, nil
	}
	expanded, err := expander.ExpandBatch(batch)
	if err != nil {
		return nil, false, err
	}
	indexer, ok = expanded.(BatchIndexer)
	if !ok {
		return nil, true, nil
	}
	kern, err = indexer.IndexBatch(batchIdx)
	if err != nil {
		return nil, false, err
	}
	return kern, false, nil
}

// evaluatedIndex forces evaluation and delegates indexing to the dense
// operator.
func (t *LazyKernelTensor) evaluatedIndex(idx []tensor.Index) (operator.LinearOperator, error) {
	op, err := t.EvaluateKernel()
	if err != nil {
		return nil, err
	}
	resolved, err := expandEllipsis(idx, len(op.Shape()))
	if err != nil {
		return nil, err
	}
	return op.Index(resolved)
}

// expandEllipsis replaces a leading Ellipsis with full selections so
// the expression has one index per dimension.
func expandEllipsis(idx []tensor.Index, ndim int) ([]tensor.Index, error) {
	pos := -1
	for i, ix := range idx {
		if ix == tensor.Ellipsis {
			if pos >= 0 {
				return nil, errors.New("kernel index: at most one ellipsis allowed")
			}
			pos = i
		}
	}
	if pos < 0 {
		return idx, nil
	}
	fill := ndim - (len(idx) - 1)
	if fill < 0 {
		return nil, errors.Errorf("kernel index: %d indices for %d dimensions", len(idx)-1, ndim)
	}
	out := make([]tensor.Index, 0, ndim)
	out = append(out, idx[:pos]...)
	for i := 0; i < fill; i++ {
		out = append(out, tensor.FullSlice())
	}
	out = append(out, idx[pos+1:]...)
	return out, nil
}
