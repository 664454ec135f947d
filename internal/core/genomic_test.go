package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGeneCSV = "gene,value\nEGFR,2.5\nTP53,-1.1\nMGMT,0.7\n"

func genomicInput(csv string) *Input {
	return &Input{JobId: "job-1", SubjectId: "subj-1", Mode: "manual", GeneCSV: csv}
}

func TestGenomicPredict(t *testing.T) {
	model, err := LoadGenomicModel("")
	require.NoError(t, err)
	defer model.Release()

	result, err := model.Predict(context.Background(), genomicInput(sampleGeneCSV))
	require.NoError(t, err)

	for _, field := range []string{FieldSurvival, FieldGrade, FieldRecurrence, FieldTMZResponse} {
		pred, ok := result.Predictions[field]
		require.True(t, ok, "missing prediction %s", field)
		assert.NotEmpty(t, pred.Label)
		assert.GreaterOrEqual(t, pred.Probability, 0.0)
		assert.LessOrEqual(t, pred.Probability, 1.0)
	}

	assert.NotContains(t, result.Predictions, FieldRadiomic)
	assert.Equal(t, []string{ModalityGene}, result.ModalitiesUsed)
	assert.Contains(t, result.Artifacts, "expression_profile.json")
	assert.Contains(t, []string{"long_term", "short_term"}, result.Predictions[FieldSurvival].Label)
	assert.Contains(t, []string{"II", "III", "IV"}, result.Predictions[FieldGrade].Label)
}

func TestGenomicPredictIsDeterministic(t *testing.T) {
	model, err := LoadGenomicModel("")
	require.NoError(t, err)
	defer model.Release()

	first, err := model.Predict(context.Background(), genomicInput(sampleGeneCSV))
	require.NoError(t, err)
	second, err := model.Predict(context.Background(), genomicInput(sampleGeneCSV))
	require.NoError(t, err)

	assert.Equal(t, first.Predictions, second.Predictions)
	assert.Equal(t, first.Artifacts, second.Artifacts)
}

func TestGenomicPredictMalformedCSV(t *testing.T) {
	model, err := LoadGenomicModel("")
	require.NoError(t, err)
	defer model.Release()

	tests := []struct {
		name string
		csv  string
	}{
		{"missing header", "EGFR,2.5\nTP53,-1.1\n"},
		{"empty payload", ""},
		{"no data rows", "gene,value\n"},
		{"non numeric value", "gene,value\nEGFR,high\n"},
		{"missing column", "gene,value\nEGFR\n"},
		{"empty gene name", "gene,value\n,2.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.Predict(context.Background(), genomicInput(tt.csv))
			require.Error(t, err)

			var inputErr *InputError
			assert.True(t, errors.As(err, &inputErr), "expected InputError, got %T", err)
			assert.NotEmpty(t, err.Error())
		})
	}
}

func TestParseExpressionCSV(t *testing.T) {
	values, err := ParseExpressionCSV(sampleGeneCSV)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EGFR": 2.5, "TP53": -1.1, "MGMT": 0.7}, values)

	// header match is case insensitive
	values, err = ParseExpressionCSV("Gene,Value\nEGFR,1.0\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EGFR": 1.0}, values)
}

func TestLoadGenomicModelWithWeights(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weights.json"), []byte(`{"seed": 12345}`), 0o644))

	custom, err := LoadGenomicModel(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 12345, custom.seed)

	builtin, err := LoadGenomicModel("")
	require.NoError(t, err)
	assert.NotEqual(t, builtin.seed, custom.seed)
}

func TestLoadGenomicModelCorruptWeights(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weights.json"), []byte("not json"), 0o644))

	_, err := LoadGenomicModel(dir)
	require.Error(t, err)
}
