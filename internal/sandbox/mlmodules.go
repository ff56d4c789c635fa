package sandbox

import (
	"errors"
	"math"

	"github.com/dop251/goja"
)

// Optional statistical modules. These degrade gracefully: when a loader
// fails (e.g. the module is disabled by configuration) the namespace simply
// omits it and the introspection call reports it unavailable.

func regressModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("linear", func(xs, ys []float64) (map[string]float64, error) {
		if len(xs) != len(ys) {
			return nil, errors.New("regress: x and y must have the same length")
		}
		if len(xs) < 2 {
			return nil, errors.New("regress: need at least two points")
		}
		n := float64(len(xs))
		var sx, sy, sxx, sxy, syy float64
		for i := range xs {
			sx += xs[i]
			sy += ys[i]
			sxx += xs[i] * xs[i]
			sxy += xs[i] * ys[i]
			syy += ys[i] * ys[i]
		}
		den := n*sxx - sx*sx
		if den == 0 {
			return nil, errors.New("regress: x values are constant")
		}
		slope := (n*sxy - sx*sy) / den
		intercept := (sy - slope*sx) / n

		// Coefficient of determination against the mean model.
		my := sy / n
		var ssRes, ssTot float64
		for i := range xs {
			pred := slope*xs[i] + intercept
			ssRes += (ys[i] - pred) * (ys[i] - pred)
			ssTot += (ys[i] - my) * (ys[i] - my)
		}
		r2 := 1.0
		if ssTot > 0 {
			r2 = 1 - ssRes/ssTot
		}
		return map[string]float64{"slope": slope, "intercept": intercept, "r2": r2}, nil
	})
	return obj, nil
}

func clusterModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("kmeans", func(points [][]float64, k int) (map[string]any, error) {
		if k <= 0 {
			return nil, errors.New("cluster: k must be positive")
		}
		if len(points) < k {
			return nil, errors.New("cluster: fewer points than clusters")
		}
		dim := len(points[0])
		for _, p := range points {
			if len(p) != dim {
				return nil, errors.New("cluster: points have mixed dimensions")
			}
		}

		// Deterministic init: first k points as centroids.
		centroids := make([][]float64, k)
		for i := range centroids {
			centroids[i] = append([]float64(nil), points[i]...)
		}
		labels := make([]int, len(points))

		const maxIters = 25
		for iter := 0; iter < maxIters; iter++ {
			changed := false
			for i, p := range points {
				best, bestDist := 0, math.Inf(1)
				for c, cen := range centroids {
					var d float64
					for j := range p {
						diff := p[j] - cen[j]
						d += diff * diff
					}
					if d < bestDist {
						best, bestDist = c, d
					}
				}
				if labels[i] != best {
					labels[i] = best
					changed = true
				}
			}
			if !changed && iter > 0 {
				break
			}
			counts := make([]int, k)
			next := make([][]float64, k)
			for i := range next {
				next[i] = make([]float64, dim)
			}
			for i, p := range points {
				counts[labels[i]]++
				for j := range p {
					next[labels[i]][j] += p[j]
				}
			}
			for c := range next {
				if counts[c] == 0 {
					// Empty cluster keeps its previous centroid.
					next[c] = centroids[c]
					continue
				}
				for j := range next[c] {
					next[c][j] /= float64(counts[c])
				}
			}
			centroids = next
		}

		return map[string]any{"centroids": centroids, "labels": labels}, nil
	})
	return obj, nil
}
