package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Band is a half-open frequency interval [Low, High) in Hz.
type Band struct {
	Name string  `json:"name"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultBands are the sensorimotor rhythms used by band power features.
var DefaultBands = []Band{
	{Name: "mu", Low: 8, High: 13},
	{Name: "beta", Low: 13, High: 30},
}

// Welch estimates the one-sided power spectral density of row with Hann
// windowed segments of segLen samples and 50% overlap. It returns the
// frequency of every bin and the density in units²/Hz.
func Welch(row []float64, rate float64, segLen int) ([]float64, []float64, error) {
	if segLen <= 1 || len(row) < segLen {
		return nil, nil, fmt.Errorf("%w: %d samples, segment %d", ErrShape, len(row), segLen)
	}
	step := segLen / 2
	if step == 0 {
		step = 1
	}
	win := make([]float64, segLen)
	var winPow float64
	for i := range win {
		win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(segLen-1))
		winPow += win[i] * win[i]
	}

	fft := fourier.NewFFT(segLen)
	bins := segLen/2 + 1
	psd := make([]float64, bins)
	seg := make([]float64, segLen)
	coeff := make([]complex128, bins)
	segments := 0
	for start := 0; start+segLen <= len(row); start += step {
		mean := stat.Mean(row[start:start+segLen], nil)
		for i := range seg {
			seg[i] = (row[start+i] - mean) * win[i]
		}
		coeff = fft.Coefficients(coeff, seg)
		for k, c := range coeff {
			p := real(c)*real(c) + imag(c)*imag(c)
			psd[k] += p
		}
		segments++
	}

	scale := 1 / (rate * winPow * float64(segments))
	freqs := make([]float64, bins)
	for k := range psd {
		psd[k] *= scale
		// one-sided: fold negative frequencies except DC and Nyquist
		if k != 0 && !(segLen%2 == 0 && k == bins-1) {
			psd[k] *= 2
		}
		freqs[k] = fft.Freq(k) * rate
	}
	return freqs, psd, nil
}

// BandPower integrates the Welch PSD of row over each band. The segment is
// one second long, or the whole row when it is shorter.
func BandPower(row []float64, rate float64, bands []Band) ([]float64, error) {
	segLen := int(rate)
	if segLen > len(row) {
		segLen = len(row)
	}
	freqs, psd, err := Welch(row, rate, segLen)
	if err != nil {
		return nil, err
	}
	df := rate / float64(segLen)
	out := make([]float64, len(bands))
	for b, band := range bands {
		for k, f := range freqs {
			if f >= band.Low && f < band.High {
				out[b] += psd[k] * df
			}
		}
	}
	return out, nil
}
