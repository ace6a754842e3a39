package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements. A scalar (rank 0)
// has one element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension %d at axis %d (must be > 0)", dim, i)
		}
	}
	return nil
}

// Equal reports whether two shapes are identical.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides: stride[i] is the product
// of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}
	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// BroadcastShapes applies NumPy-style broadcasting rules to a pair of
// shapes. Dimensions are compared right to left; they are compatible when
// equal or when one of them is 1, and missing dimensions count as 1.
// Returns the broadcast shape and whether any broadcasting is needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	n := max(len(a), len(b))
	result := make(Shape, n)
	needsBroadcast := false

	for i := 0; i < n; i++ {
		aDim, bDim := 1, 1
		if idx := len(a) - 1 - i; idx >= 0 {
			aDim = a[idx]
		}
		if idx := len(b) - 1 - i; idx >= 0 {
			bDim = b[idx]
		}

		switch {
		case aDim == bDim:
			result[n-1-i] = aDim
		case aDim == 1:
			result[n-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[n-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes %v and %v are not broadcastable (axis %d: %d vs %d)",
				a, b, n-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}
