package cpu

import (
	"fmt"

	"github.com/grist-ml/grist/internal/parallel"
	"github.com/grist-ml/grist/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
// Rows of the output are computed in parallel.
func (c *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := mustNewRaw(tensor.Shape{m, n}, a.DType(), c.device, "matmul")

	switch a.DType() {
	case tensor.Float32:
		matmulRows(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n, c.par)
	case tensor.Float64:
		matmulRows(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), m, k, n, c.par)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	return result
}

// matmulRows computes C[i,j] = Σ_k A[i,k] * B[k,j], one output row per
// work item. The k-inner loop is ordered for sequential access to B.
func matmulRows[T ~float32 | ~float64](cOut, a, b []T, m, k, n int, par parallel.Config) {
	parallel.For(m, func(i int) {
		row := cOut[i*n : (i+1)*n]
		for j := range row {
			row[j] = 0
		}
		for kIdx := 0; kIdx < k; kIdx++ {
			av := a[i*k+kIdx]
			if av == 0 {
				continue
			}
			bRow := b[kIdx*n : (kIdx+1)*n]
			for j, bv := range bRow {
				row[j] += av * bv
			}
		}
	}, par)
}
