package store

import "math"

// Distance metrics understood by the HNSW store.
const (
	MetricCosine    = "cos"
	MetricEuclidean = "l2"
)

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sq))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// similarity maps a graph distance onto [0, 1], higher is closer. Cosine
// distance spans 0..2 and euclidean 0..inf.
func similarity(distance float32, metric string) float64 {
	if metric == MetricEuclidean {
		return float64(1 / (1 + distance))
	}
	return float64(1 - distance/2)
}
