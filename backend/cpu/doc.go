// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
//   - Matrix multiplication parallelized across output rows
//
// # Basic Usage
//
//	import (
//	    "github.com/grist-ml/grist/backend/cpu"
//	    "github.com/grist-ml/grist/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    z := x.Add(y)
//	}
package cpu
