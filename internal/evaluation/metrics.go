// Package evaluation scores decoders: confusion matrices, accuracy, Cohen's
// kappa, Wolpaw information transfer rate and stratified cross-validation.
package evaluation

import "math"

// Confusion counts predictions per true class: m[truth][pred]. Pairs with
// an index outside [0, k) are ignored.
func Confusion(truth, pred []int, k int) [][]int {
	m := make([][]int, k)
	for i := range m {
		m[i] = make([]int, k)
	}
	for i := range truth {
		if i >= len(pred) {
			break
		}
		t, p := truth[i], pred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			continue
		}
		m[t][p]++
	}
	return m
}

func total(conf [][]int) int {
	var n int
	for _, row := range conf {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Accuracy is the fraction of counts on the diagonal.
func Accuracy(conf [][]int) float64 {
	n := total(conf)
	if n == 0 {
		return 0
	}
	var hit int
	for i := range conf {
		hit += conf[i][i]
	}
	return float64(hit) / float64(n)
}

// CohenKappa is the chance-corrected agreement (po - pe) / (1 - pe).
func CohenKappa(conf [][]int) float64 {
	n := float64(total(conf))
	if n == 0 {
		return 0
	}
	po := Accuracy(conf)
	var pe float64
	for i := range conf {
		var row, col float64
		for j := range conf {
			row += float64(conf[i][j])
			col += float64(conf[j][i])
		}
		pe += (row / n) * (col / n)
	}
	if pe >= 1 {
		return 0
	}
	return (po - pe) / (1 - pe)
}

// ITR is the Wolpaw information transfer rate in bits per minute for n
// classes, accuracy p and trialSeconds per selection. Accuracy at or below
// chance yields 0.
func ITR(n int, p, trialSeconds float64) float64 {
	if n < 2 || trialSeconds <= 0 || p <= 1/float64(n) {
		return 0
	}
	bits := math.Log2(float64(n))
	if p < 1 {
		bits += p*math.Log2(p) + (1-p)*math.Log2((1-p)/float64(n-1))
	}
	return bits * 60 / trialSeconds
}
