package optim

import (
	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum:
//
//	param -= lr * grad
//
// With momentum:
//
//	velocity = momentum * velocity + grad
//	param -= lr * velocity
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter[B]][]float32
	backend    B
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR       float32 // learning rate, default 0.01
	Momentum float32 // momentum factor in [0, 1), default 0
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]][]float32),
		backend:    backend,
	}
}

// Step applies the update rule to every parameter with a gradient.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		p := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()

		if s.momentum == 0 {
			for i := range p {
				p[i] -= s.lr * g[i]
			}
			continue
		}

		v, ok := s.velocities[param]
		if !ok {
			v = make([]float32, len(p))
			s.velocities[param] = v
		}
		for i := range p {
			v[i] = s.momentum*v[i] + g[i]
			p[i] -= s.lr * v[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate, for scheduling.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}
