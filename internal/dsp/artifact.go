package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ArtifactCriteria decides which independent components are artifacts.
// A zero threshold disables that criterion.
type ArtifactCriteria struct {
	EOGThreshold      float64
	KurtosisThreshold float64
	MaxComponents     int
}

// ComponentScore explains why a component was or was not excluded.
// KurtosisZ is the component's excess kurtosis z-scored against all
// components of the same decomposition.
type ComponentScore struct {
	Component int
	EOG       float64
	Kurtosis  float64
	KurtosisZ float64
	Score     float64
	Excluded  bool
}

// ArtifactComponents scores every source of ica against the EOG reference
// rows of x and returns the excluded components, highest score first. At
// least one component is always kept.
func ArtifactComponents(ica *ICA, x [][]float64, eogRows []int, crit ArtifactCriteria) ([]int, []ComponentScore, error) {
	sources, err := ica.Sources(x)
	if err != nil {
		return nil, nil, err
	}
	kurt := make([]float64, len(sources))
	for i, s := range sources {
		kurt[i] = Kurtosis(s)
	}
	kz := ZScores(kurt)

	scores := make([]ComponentScore, len(sources))
	for i, s := range sources {
		cs := ComponentScore{Component: i, Kurtosis: kurt[i], KurtosisZ: kz[i]}
		for _, r := range eogRows {
			if r < 0 || r >= len(x) {
				continue
			}
			if v := math.Abs(Pearson(s, x[r])); v > cs.EOG {
				cs.EOG = v
			}
		}
		if crit.EOGThreshold > 0 && len(eogRows) > 0 && cs.EOG >= crit.EOGThreshold {
			cs.Score = math.Max(cs.Score, cs.EOG/crit.EOGThreshold)
		}
		if crit.KurtosisThreshold > 0 && cs.KurtosisZ >= crit.KurtosisThreshold {
			cs.Score = math.Max(cs.Score, cs.KurtosisZ/crit.KurtosisThreshold)
		}
		scores[i] = cs
	}

	order := make([]int, 0, len(scores))
	for i, cs := range scores {
		if cs.Score > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].Score > scores[order[b]].Score
	})
	limit := len(scores) - 1
	if crit.MaxComponents > 0 && crit.MaxComponents < limit {
		limit = crit.MaxComponents
	}
	if len(order) > limit {
		order = order[:limit]
	}
	for _, i := range order {
		scores[i].Excluded = true
	}
	return order, scores, nil
}

// ZScores standardises v by its population mean and deviation. A constant
// or single-valued v scores all zeros.
func ZScores(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) < 2 {
		return out
	}
	mean, std := stat.PopMeanStdDev(v, nil)
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, x := range v {
		out[i] = (x - mean) / std
	}
	return out
}

// CleaningMatrix returns Mixing·diag(mask)·Unmixing, the channel-space
// projection that removes the excluded components.
func CleaningMatrix(ica *ICA, excluded []int) *mat.Dense {
	k := ica.Components()
	mask := mat.NewDiagDense(k, nil)
	for i := 0; i < k; i++ {
		mask.SetDiag(i, 1)
	}
	for _, e := range excluded {
		if e >= 0 && e < k {
			mask.SetDiag(e, 0)
		}
	}
	var tmp, out mat.Dense
	tmp.Mul(ica.Mixing, mask)
	out.Mul(&tmp, ica.Unmixing)
	return &out
}

// Clean applies a cleaning matrix around the fitted channel means:
// m·(x - mean) + mean.
func Clean(m [][]float64, mean []float64, x [][]float64) ([][]float64, error) {
	centred := Copy(x)
	for c := range centred {
		if c >= len(mean) {
			break
		}
		for t := range centred[c] {
			centred[c][t] -= mean[c]
		}
	}
	out, err := ApplyMatrix(m, centred)
	if err != nil {
		return nil, err
	}
	for c := range out {
		if c >= len(mean) {
			break
		}
		for t := range out[c] {
			out[c][t] += mean[c]
		}
	}
	return out, nil
}
