package core

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imagingInput(data []byte) *Input {
	return &Input{
		JobId:     "job-2",
		SubjectId: "subj-2",
		Mode:      "manual",
		ImageB64:  base64.StdEncoding.EncodeToString(data),
	}
}

func TestImagingPredict(t *testing.T) {
	model, err := LoadImagingModel("")
	require.NoError(t, err)
	defer model.Release()

	result, err := model.Predict(context.Background(), imagingInput([]byte("dicom-ish scan payload")))
	require.NoError(t, err)

	for _, field := range []string{FieldGrade, FieldRecurrence} {
		pred, ok := result.Predictions[field]
		require.True(t, ok, "missing prediction %s", field)
		assert.GreaterOrEqual(t, pred.Probability, 0.0)
		assert.LessOrEqual(t, pred.Probability, 1.0)
	}

	assert.Equal(t, []string{ModalityImaging}, result.ModalitiesUsed)

	attention, ok := result.Artifacts["attention_map.png"]
	require.True(t, ok)
	assert.Equal(t, "image/png", attention.Type)

	decoded, err := base64.StdEncoding.DecodeString(attention.Content)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), decoded[:4])

	assert.Contains(t, result.Artifacts, "imaging_features.json")
}

func TestImagingPredictBadPayload(t *testing.T) {
	model, err := LoadImagingModel("")
	require.NoError(t, err)
	defer model.Release()

	tests := []struct {
		name     string
		imageB64 string
	}{
		{"empty payload", ""},
		{"invalid base64", "!!!not base64!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.Predict(context.Background(), &Input{ImageB64: tt.imageB64})
			require.Error(t, err)

			var inputErr *InputError
			assert.True(t, errors.As(err, &inputErr))
		})
	}
}

func TestExtractImagingFeaturesShape(t *testing.T) {
	features, err := ExtractImagingFeatures(base64.StdEncoding.EncodeToString([]byte("scan")))
	require.NoError(t, err)
	assert.Len(t, features, ImagingFeatureDim)

	again, err := ExtractImagingFeatures(base64.StdEncoding.EncodeToString([]byte("scan")))
	require.NoError(t, err)
	assert.Equal(t, features, again)
}
