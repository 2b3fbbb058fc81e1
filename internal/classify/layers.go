package classify

import (
	"fmt"
	"math"
)

const normEpsilon = 1e-5

// Linear is y = W·x + b with W shaped [out][in].
type Linear struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

func (l *Linear) check(in, out int, name string) error {
	if len(l.W) != out || len(l.B) != out {
		return fmt.Errorf("%s: want %d outputs, got %d weights and %d biases", name, out, len(l.W), len(l.B))
	}
	for _, row := range l.W {
		if len(row) != in {
			return fmt.Errorf("%s: want %d inputs, got %d", name, in, len(row))
		}
	}
	return nil
}

func (l *Linear) forward(x []float64) []float64 {
	out := make([]float64, len(l.W))
	for o, row := range l.W {
		s := l.B[o]
		for i, w := range row {
			s += w * x[i]
		}
		out[o] = s
	}
	return out
}

// BatchNorm holds inference-time batch normalisation statistics.
type BatchNorm struct {
	Gamma []float64 `json:"gamma"`
	Beta  []float64 `json:"beta"`
	Mean  []float64 `json:"mean"`
	Var   []float64 `json:"var"`
}

func (bn *BatchNorm) check(n int, name string) error {
	if len(bn.Gamma) != n || len(bn.Beta) != n || len(bn.Mean) != n || len(bn.Var) != n {
		return fmt.Errorf("%s: want %d channels", name, n)
	}
	for _, v := range bn.Var {
		if v < 0 {
			return fmt.Errorf("%s: negative running variance", name)
		}
	}
	return nil
}

// apply normalises row in place as channel ch.
func (bn *BatchNorm) apply(ch int, row []float64) {
	scale := bn.Gamma[ch] / math.Sqrt(bn.Var[ch]+normEpsilon)
	shift := bn.Beta[ch] - bn.Mean[ch]*scale
	for i, v := range row {
		row[i] = v*scale + shift
	}
}

func identityBatchNorm(n int) BatchNorm {
	bn := BatchNorm{
		Gamma: make([]float64, n),
		Beta:  make([]float64, n),
		Mean:  make([]float64, n),
		Var:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		bn.Gamma[i] = 1
		bn.Var[i] = 1
	}
	return bn
}

// LayerNorm normalises a token over its features.
type LayerNorm struct {
	Gamma []float64 `json:"gamma"`
	Beta  []float64 `json:"beta"`
}

func (ln *LayerNorm) check(n int, name string) error {
	if len(ln.Gamma) != n || len(ln.Beta) != n {
		return fmt.Errorf("%s: want %d features", name, n)
	}
	return nil
}

func (ln *LayerNorm) forward(x []float64) []float64 {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(x))
	inv := 1 / math.Sqrt(variance+normEpsilon)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v-mean)*inv*ln.Gamma[i] + ln.Beta[i]
	}
	return out
}

func identityLayerNorm(n int) LayerNorm {
	ln := LayerNorm{Gamma: make([]float64, n), Beta: make([]float64, n)}
	for i := range ln.Gamma {
		ln.Gamma[i] = 1
	}
	return ln
}

func elu(v float64) float64 {
	if v > 0 {
		return v
	}
	return math.Expm1(v)
}

func gelu(v float64) float64 {
	return 0.5 * v * (1 + math.Erf(v/math.Sqrt2))
}

// Attention is multi-head scaled dot-product self attention.
type Attention struct {
	Query Linear `json:"query"`
	Key   Linear `json:"key"`
	Value Linear `json:"value"`
	Out   Linear `json:"out"`
}

func (a *Attention) forward(tokens [][]float64, heads int) [][]float64 {
	n := len(tokens)
	q := make([][]float64, n)
	k := make([][]float64, n)
	v := make([][]float64, n)
	for i, t := range tokens {
		q[i] = a.Query.forward(t)
		k[i] = a.Key.forward(t)
		v[i] = a.Value.forward(t)
	}
	dim := len(q[0])
	dk := dim / heads
	scale := 1 / math.Sqrt(float64(dk))

	out := make([][]float64, n)
	scores := make([]float64, n)
	for i := range out {
		concat := make([]float64, dim)
		for h := 0; h < heads; h++ {
			lo, hi := h*dk, (h+1)*dk
			for j := 0; j < n; j++ {
				var s float64
				for d := lo; d < hi; d++ {
					s += q[i][d] * k[j][d]
				}
				scores[j] = s * scale
			}
			weights := Softmax(scores)
			for j, w := range weights {
				for d := lo; d < hi; d++ {
					concat[d] += w * v[j][d]
				}
			}
		}
		out[i] = a.Out.forward(concat)
	}
	return out
}

// FeedForward is Linear → GELU → Linear.
type FeedForward struct {
	Up   Linear `json:"up"`
	Down Linear `json:"down"`
}

func (f *FeedForward) forward(x []float64) []float64 {
	h := f.Up.forward(x)
	for i, v := range h {
		h[i] = gelu(v)
	}
	return f.Down.forward(h)
}

// TransformerBlock is a pre-norm encoder block with residual connections.
type TransformerBlock struct {
	Norm1       LayerNorm   `json:"norm1"`
	Attention   Attention   `json:"attention"`
	Norm2       LayerNorm   `json:"norm2"`
	FeedForward FeedForward `json:"feed_forward"`
}

func (b *TransformerBlock) forward(tokens [][]float64, heads int) [][]float64 {
	normed := make([][]float64, len(tokens))
	for i, t := range tokens {
		normed[i] = b.Norm1.forward(t)
	}
	attn := b.Attention.forward(normed, heads)
	out := make([][]float64, len(tokens))
	for i, t := range tokens {
		mid := make([]float64, len(t))
		for d, v := range t {
			mid[d] = v + attn[i][d]
		}
		ff := b.FeedForward.forward(b.Norm2.forward(mid))
		for d := range mid {
			mid[d] += ff[d]
		}
		out[i] = mid
	}
	return out
}
