package normalize

import "math"

// L2NormalizeInPlace normalizes vec to unit L2 norm.
// If vec is empty or all zeros, it is left unchanged.
func L2NormalizeInPlace(vec []float32) {
	if len(vec) == 0 {
		return
	}
	var sumSq float64
	for _, v := range vec {
		f := float64(v)
		sumSq += f * f
	}
	if sumSq <= 0 {
		return
	}
	invNorm := float32(1.0 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= invNorm
	}
}

// AverageL2 averages vectors elementwise and L2-normalizes the result.
// Returns nil if vectors is empty or dimensions mismatch.
func AverageL2(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil
	}
	sum := make([]float32, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i := 0; i < dim; i++ {
			sum[i] += v[i]
		}
	}
	inv := float32(1.0) / float32(len(vectors))
	for i := 0; i < dim; i++ {
		sum[i] *= inv
	}
	L2NormalizeInPlace(sum)
	return sum
}
