package cpu

import (
	internalcpu "github.com/grist-ml/grist/internal/backend/cpu"
	"github.com/grist-ml/grist/tensor"
)

// Backend represents the CPU backend implementation.
//
// The CPU backend provides pure Go implementations of all tensor
// operations, with a row-parallel matrix multiply.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/grist-ml/grist/backend/cpu"
//	    "github.com/grist-ml/grist/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	}
func New() *Backend {
	return internalcpu.New()
}
