package optim

import (
	"math"

	"github.com/grist-ml/grist/internal/nn"
	"github.com/grist-ml/grist/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014).
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * grad
//	v_t = beta2 * v_{t-1} + (1-beta2) * grad²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
type Adam[B tensor.Backend] struct {
	params  []*nn.Parameter[B]
	lr      float32
	beta1   float32
	beta2   float32
	eps     float32
	t       int
	m       map[*nn.Parameter[B]][]float32
	v       map[*nn.Parameter[B]][]float32
	backend B
}

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LR    float32    // learning rate, default 0.001
	Betas [2]float32 // moving average coefficients, default [0.9, 0.999]
	Eps   float32    // numerical stability term, default 1e-8
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params:  params,
		lr:      config.LR,
		beta1:   config.Betas[0],
		beta2:   config.Betas[1],
		eps:     config.Eps,
		m:       make(map[*nn.Parameter[B]][]float32),
		v:       make(map[*nn.Parameter[B]][]float32),
		backend: backend,
	}
}

// Step applies one Adam update to every parameter with a gradient.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	correction1 := 1 - math.Pow(float64(a.beta1), float64(a.t))
	correction2 := 1 - math.Pow(float64(a.beta2), float64(a.t))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		p := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()

		m, ok := a.m[param]
		if !ok {
			m = make([]float32, len(p))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, len(p))
			a.v[param] = v
		}

		for i := range p {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]

			mHat := float64(m[i]) / correction1
			vHat := float64(v[i]) / correction2

			p[i] -= float32(float64(a.lr) * mHat / (math.Sqrt(vHat) + float64(a.eps)))
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}
