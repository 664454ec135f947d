package core

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
)

// The model weight numerics are opaque to the pipeline: every predictor is a
// seeded projection of the input features through a pseudo-random weight
// stream, so outputs are deterministic for the same weights and inputs and
// calibrated into [0, 1] by a logistic.

type modelWeights struct {
	Seed uint64 `json:"seed"`
}

// loadSeed reads the weight seed from <modelDir>/weights.json. An empty or
// missing model dir falls back to the family's built-in seed; a present but
// corrupt weights file is an error.
func loadSeed(modelDir string, fallback uint64) (uint64, error) {
	if modelDir == "" {
		return fallback, nil
	}

	path := filepath.Join(modelDir, "weights.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return 0, fmt.Errorf("failed to read weights file %s: %w", path, err)
	}

	var w modelWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return 0, fmt.Errorf("corrupt weights file %s: %w", path, err)
	}
	return w.Seed, nil
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// projection computes a dot product of the features against a weight stream
// derived from seed, normalized by vector length.
func projection(features []float64, seed uint64) float64 {
	state := seed
	var sum float64
	for _, f := range features {
		// weight in [-1, 1)
		w := float64(splitmix64(&state)>>11)/float64(1<<53)*2 - 1
		sum += f * w
	}
	if len(features) == 0 {
		return 0
	}
	return sum / math.Sqrt(float64(len(features)))
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// binaryScore returns a calibrated probability in (0, 1).
func binaryScore(features []float64, seed uint64) float64 {
	return logistic(projection(features, seed))
}

// classify scores every label with its own weight stream and returns the
// argmax label with its softmax probability.
func classify(features []float64, seed uint64, labels []string) (string, float64) {
	scores := make([]float64, len(labels))
	var maxScore float64 = math.Inf(-1)
	best := 0
	for i := range labels {
		scores[i] = projection(features, seed+uint64(i+1)*0x9e3779b9)
		if scores[i] > maxScore {
			maxScore = scores[i]
			best = i
		}
	}

	var denom float64
	for _, s := range scores {
		denom += math.Exp(s - maxScore)
	}
	return labels[best], math.Exp(0) / denom
}

// hashFeatureVector folds named values into a fixed-dim vector by hashing
// each name to an index.
func hashFeatureVector(values map[string]float64, dim int) []float64 {
	vec := make([]float64, dim)
	for name, value := range values {
		h := fnv.New32a()
		h.Write([]byte(name))
		vec[int(h.Sum32())%dim] += value
	}
	return vec
}

// byteHistogramFeatures maps raw bytes into a fixed-dim normalized histogram.
func byteHistogramFeatures(data []byte, dim int) []float64 {
	vec := make([]float64, dim)
	for i, b := range data {
		vec[(int(b)*31+i)%dim]++
	}
	total := float64(len(data))
	if total > 0 {
		for i := range vec {
			vec[i] /= total
		}
	}
	return vec
}

func jsonArtifact(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
