package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// NeuroConfig describes the NeuroTransNet architecture.
type NeuroConfig struct {
	Channels        int   `json:"channels"`
	Samples         int   `json:"samples"`
	Classes         int   `json:"classes"`
	Embed           int   `json:"embed"`
	Heads           int   `json:"heads"`
	Depth           int   `json:"depth"`
	FFRatio         int   `json:"ff_ratio"`
	PoolSize        int   `json:"pool_size"`
	PoolStride      int   `json:"pool_stride"`
	Kernels         []int `json:"kernels"`
	EncoderChannels int   `json:"encoder_channels"`
}

// DefaultNeuroConfig returns the reference architecture for a montage and
// window length.
func DefaultNeuroConfig(channels, samples, classes int) NeuroConfig {
	return NeuroConfig{
		Channels:        channels,
		Samples:         samples,
		Classes:         classes,
		Embed:           32,
		Heads:           8,
		Depth:           4,
		FFRatio:         4,
		PoolSize:        50,
		PoolStride:      15,
		Kernels:         []int{15, 25, 51, 65},
		EncoderChannels: 64,
	}
}

// Tokens is the sequence length after temporal pooling.
func (c NeuroConfig) Tokens() int {
	return dsp.PooledLen(c.Samples, c.PoolSize, c.PoolStride)
}

func (c NeuroConfig) Validate() error {
	switch {
	case c.Channels <= 0 || c.Samples <= 0:
		return errors.New("channels and samples must be positive")
	case c.Classes < 2:
		return errors.New("need at least two classes")
	case len(c.Kernels) == 0 || c.Embed <= 0 || c.Embed%len(c.Kernels) != 0:
		return fmt.Errorf("embed %d not divisible by %d temporal kernels", c.Embed, len(c.Kernels))
	case c.Heads <= 0 || c.Embed%c.Heads != 0:
		return fmt.Errorf("embed %d not divisible by %d heads", c.Embed, c.Heads)
	case c.Depth < 0 || c.FFRatio <= 0 || c.EncoderChannels <= 0:
		return errors.New("depth, ff ratio and encoder channels must be positive")
	case c.Tokens() == 0:
		return fmt.Errorf("window of %d samples shorter than pool size %d", c.Samples, c.PoolSize)
	}
	for _, k := range c.Kernels {
		if k <= 0 || k%2 == 0 {
			return fmt.Errorf("temporal kernel %d must be odd", k)
		}
	}
	return nil
}

// TemporalConv is one bank of 1-D filters applied to every channel with
// same padding.
type TemporalConv struct {
	W [][]float64 `json:"w"` // [filter][tap]
	B []float64   `json:"b"`
}

// Conv2 is a convolution whose kernel spans the full height of its input:
// W is [out][in][height].
type Conv2 struct {
	W [][][]float64 `json:"w"`
	B []float64     `json:"b"`
}

func (c *Conv2) check(out, in, height int, name string) error {
	if len(c.W) != out || len(c.B) != out {
		return fmt.Errorf("%s: want %d output channels", name, out)
	}
	for _, o := range c.W {
		if len(o) != in {
			return fmt.Errorf("%s: want %d input channels", name, in)
		}
		for _, i := range o {
			if len(i) != height {
				return fmt.Errorf("%s: want kernel height %d", name, height)
			}
		}
	}
	return nil
}

// NeuroWeights is the serialised form of a trained NeuroTransNet.
type NeuroWeights struct {
	Config     NeuroConfig        `json:"config"`
	Temporal   []TemporalConv     `json:"temporal"`
	TemporalBN BatchNorm          `json:"temporal_bn"`
	Spatial    Conv2              `json:"spatial"`
	SpatialBN  BatchNorm          `json:"spatial_bn"`
	Blocks     []TransformerBlock `json:"blocks"`
	Encoder    Conv2              `json:"encoder"`
	EncoderBN  BatchNorm          `json:"encoder_bn"`
	Classifier Linear             `json:"classifier"`
}

func (w *NeuroWeights) validate() error {
	c := w.Config
	if err := c.Validate(); err != nil {
		return err
	}
	e := c.Embed
	per := e / len(c.Kernels)
	if len(w.Temporal) != len(c.Kernels) {
		return fmt.Errorf("temporal: want %d banks, got %d", len(c.Kernels), len(w.Temporal))
	}
	for g, tc := range w.Temporal {
		if len(tc.W) != per || len(tc.B) != per {
			return fmt.Errorf("temporal[%d]: want %d filters", g, per)
		}
		for _, taps := range tc.W {
			if len(taps) != c.Kernels[g] {
				return fmt.Errorf("temporal[%d]: want %d taps", g, c.Kernels[g])
			}
		}
	}
	if err := w.TemporalBN.check(e, "temporal_bn"); err != nil {
		return err
	}
	if err := w.Spatial.check(e, e, c.Channels, "spatial"); err != nil {
		return err
	}
	if err := w.SpatialBN.check(e, "spatial_bn"); err != nil {
		return err
	}
	if len(w.Blocks) != c.Depth {
		return fmt.Errorf("blocks: want %d, got %d", c.Depth, len(w.Blocks))
	}
	hidden := e * c.FFRatio
	for i := range w.Blocks {
		b := &w.Blocks[i]
		name := fmt.Sprintf("blocks[%d]", i)
		for _, err := range []error{
			b.Norm1.check(e, name+".norm1"),
			b.Norm2.check(e, name+".norm2"),
			b.Attention.Query.check(e, e, name+".query"),
			b.Attention.Key.check(e, e, name+".key"),
			b.Attention.Value.check(e, e, name+".value"),
			b.Attention.Out.check(e, e, name+".out"),
			b.FeedForward.Up.check(e, hidden, name+".up"),
			b.FeedForward.Down.check(hidden, e, name+".down"),
		} {
			if err != nil {
				return err
			}
		}
	}
	if err := w.Encoder.check(c.EncoderChannels, c.Tokens(), 2, "encoder"); err != nil {
		return err
	}
	if err := w.EncoderBN.check(c.EncoderChannels, "encoder_bn"); err != nil {
		return err
	}
	return w.Classifier.check(c.EncoderChannels*e, c.Classes, "classifier")
}

// NeuroTransNet is an inference-only multi-scale convolution + transformer
// decoder. Weights come from an offline training run.
type NeuroTransNet struct {
	w *NeuroWeights
}

func NewNeuroTransNet(w *NeuroWeights) (*NeuroTransNet, error) {
	if w == nil {
		return nil, errors.New("missing weights")
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	return &NeuroTransNet{w: w}, nil
}

func (m *NeuroTransNet) Kind() domain.DecoderKind { return domain.KindNeuroTransNet }

func (m *NeuroTransNet) NumClasses() int { return m.w.Config.Classes }

func (m *NeuroTransNet) Config() NeuroConfig { return m.w.Config }

func (m *NeuroTransNet) MarshalJSON() ([]byte, error) { return json.Marshal(m.w) }

func (m *NeuroTransNet) Predict(window [][]float64) ([]float64, error) {
	cfg := m.w.Config
	if err := checkWindow(window, cfg.Channels); err != nil {
		return nil, err
	}
	for _, row := range window {
		if len(row) != cfg.Samples {
			return nil, fmt.Errorf("%w: model expects %d samples, got %d", dsp.ErrShape, cfg.Samples, len(row))
		}
	}

	// [embed][channel][sample]
	feat := m.temporal(window)
	for e := range feat {
		for c := range feat[e] {
			m.w.TemporalBN.apply(e, feat[e][c])
		}
	}

	// [embed][sample]
	spatial := m.spatial(feat)
	for e, row := range spatial {
		m.w.SpatialBN.apply(e, row)
		for t, v := range row {
			row[t] = elu(v)
		}
	}

	n := cfg.Tokens()
	mean := make([][]float64, n)
	logVar := make([][]float64, n)
	for t := 0; t < n; t++ {
		mean[t] = make([]float64, cfg.Embed)
		logVar[t] = make([]float64, cfg.Embed)
	}
	for e, row := range spatial {
		avg, err := dsp.AveragePool(row, cfg.PoolSize, cfg.PoolStride)
		if err != nil {
			return nil, err
		}
		lv, err := dsp.VariancePool(row, cfg.PoolSize, cfg.PoolStride)
		if err != nil {
			return nil, err
		}
		for t := 0; t < n; t++ {
			mean[t][e] = avg[t]
			logVar[t][e] = lv[t]
		}
	}

	for i := range m.w.Blocks {
		mean = m.w.Blocks[i].forward(mean, cfg.Heads)
		logVar = m.w.Blocks[i].forward(logVar, cfg.Heads)
	}

	flat := make([]float64, 0, cfg.EncoderChannels*cfg.Embed)
	enc := m.w.Encoder
	for o := 0; o < cfg.EncoderChannels; o++ {
		row := make([]float64, cfg.Embed)
		for e := range row {
			s := enc.B[o]
			for t := 0; t < n; t++ {
				s += enc.W[o][t][0]*mean[t][e] + enc.W[o][t][1]*logVar[t][e]
			}
			row[e] = s
		}
		m.w.EncoderBN.apply(o, row)
		for e, v := range row {
			row[e] = elu(v)
		}
		flat = append(flat, row...)
	}

	return Softmax(m.w.Classifier.forward(flat)), nil
}

func (m *NeuroTransNet) temporal(window [][]float64) [][][]float64 {
	cfg := m.w.Config
	per := cfg.Embed / len(cfg.Kernels)
	out := make([][][]float64, cfg.Embed)
	for g, bank := range m.w.Temporal {
		pad := cfg.Kernels[g] / 2
		for f, taps := range bank.W {
			e := g*per + f
			out[e] = make([][]float64, len(window))
			for c, row := range window {
				y := make([]float64, len(row))
				for t := range y {
					s := bank.B[f]
					for j, w := range taps {
						idx := t + j - pad
						if idx < 0 || idx >= len(row) {
							continue
						}
						s += w * row[idx]
					}
					y[t] = s
				}
				out[e][c] = y
			}
		}
	}
	return out
}

func (m *NeuroTransNet) spatial(feat [][][]float64) [][]float64 {
	sp := m.w.Spatial
	samples := m.w.Config.Samples
	out := make([][]float64, len(sp.W))
	for o, kernel := range sp.W {
		y := make([]float64, samples)
		for t := range y {
			y[t] = sp.B[o]
		}
		for i, heights := range kernel {
			for c, w := range heights {
				if w == 0 {
					continue
				}
				src := feat[i][c]
				for t := range y {
					y[t] += w * src[t]
				}
			}
		}
		out[o] = y
	}
	return out
}

// RandomNeuroWeights returns a valid, randomly initialised network with
// identity normalisation layers. It is meant as an import template and for
// exercising the inference path, not as a usable decoder.
func RandomNeuroWeights(cfg NeuroConfig, seed int64) (*NeuroWeights, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	e := cfg.Embed
	per := e / len(cfg.Kernels)
	hidden := e * cfg.FFRatio

	w := &NeuroWeights{
		Config:     cfg,
		TemporalBN: identityBatchNorm(e),
		SpatialBN:  identityBatchNorm(e),
		EncoderBN:  identityBatchNorm(cfg.EncoderChannels),
		Classifier: randomLinear(rng, cfg.EncoderChannels*e, cfg.Classes),
	}
	for _, k := range cfg.Kernels {
		tc := TemporalConv{W: make([][]float64, per), B: make([]float64, per)}
		for f := range tc.W {
			tc.W[f] = randomVector(rng, k, k)
		}
		w.Temporal = append(w.Temporal, tc)
	}
	w.Spatial = randomConv2(rng, e, e, cfg.Channels)
	w.Encoder = randomConv2(rng, cfg.EncoderChannels, cfg.Tokens(), 2)
	for i := 0; i < cfg.Depth; i++ {
		w.Blocks = append(w.Blocks, TransformerBlock{
			Norm1: identityLayerNorm(e),
			Norm2: identityLayerNorm(e),
			Attention: Attention{
				Query: randomLinear(rng, e, e),
				Key:   randomLinear(rng, e, e),
				Value: randomLinear(rng, e, e),
				Out:   randomLinear(rng, e, e),
			},
			FeedForward: FeedForward{
				Up:   randomLinear(rng, e, hidden),
				Down: randomLinear(rng, hidden, e),
			},
		})
	}
	return w, nil
}

func randomVector(rng *rand.Rand, n, fanIn int) []float64 {
	scale := 1 / math.Sqrt(float64(fanIn))
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64() * scale
	}
	return v
}

func randomLinear(rng *rand.Rand, in, out int) Linear {
	l := Linear{W: make([][]float64, out), B: make([]float64, out)}
	for o := range l.W {
		l.W[o] = randomVector(rng, in, in)
	}
	return l
}

func randomConv2(rng *rand.Rand, out, in, height int) Conv2 {
	c := Conv2{W: make([][][]float64, out), B: make([]float64, out)}
	for o := range c.W {
		c.W[o] = make([][]float64, in)
		for i := range c.W[o] {
			c.W[o][i] = randomVector(rng, height, in*height)
		}
	}
	return c
}
