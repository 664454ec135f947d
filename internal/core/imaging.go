package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"time"

	"cds-backend/pkg/api"
)

const imagingDefaultSeed = 0x696d6167696e67

const attentionMapSize = 64

// ImagingModel is the imaging-only (M1) inference service.
type ImagingModel struct {
	seed uint64
}

var _ Model = (*ImagingModel)(nil)

func LoadImagingModel(modelDir string) (*ImagingModel, error) {
	seed, err := loadSeed(modelDir, imagingDefaultSeed)
	if err != nil {
		return nil, err
	}
	return &ImagingModel{seed: seed}, nil
}

func (m *ImagingModel) Predict(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()

	features, err := ExtractImagingFeatures(input.ImageB64)
	if err != nil {
		return nil, err
	}

	predictions := map[string]api.Prediction{
		FieldGrade:      classPrediction(features, m.seed, 1, gradeLabels),
		FieldRecurrence: binaryPrediction(features, m.seed, 2, "recurrence", "no_recurrence"),
	}

	attention, err := renderAttentionMap(features, m.seed)
	if err != nil {
		return nil, err
	}

	dump, err := jsonArtifact(features)
	if err != nil {
		return nil, err
	}

	return &Result{
		Predictions:    predictions,
		ModalitiesUsed: []string{ModalityImaging},
		Artifacts: map[string]api.FilePayload{
			"attention_map.png":     {Content: attention, Type: "image/png"},
			"imaging_features.json": {Content: dump, Type: "application/json"},
		},
		ProcessingTime: time.Since(start),
	}, nil
}

func (m *ImagingModel) Release() {}

// ExtractImagingFeatures decodes the base64 image payload and reduces it to
// the fixed-dim feature vector used by both the imaging and multimodal
// services.
func ExtractImagingFeatures(imageB64 string) ([]float64, error) {
	if imageB64 == "" {
		return nil, InputErrorf("imaging payload is empty")
	}

	data, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return nil, InputErrorf("imaging payload is not valid base64: %v", err)
	}
	if len(data) == 0 {
		return nil, InputErrorf("imaging payload decoded to zero bytes")
	}

	return byteHistogramFeatures(data, ImagingFeatureDim), nil
}

// renderAttentionMap produces the saliency visualization returned alongside
// imaging predictions, as a base64 PNG.
func renderAttentionMap(features []float64, seed uint64) (string, error) {
	img := image.NewGray(image.Rect(0, 0, attentionMapSize, attentionMapSize))

	state := seed
	for y := 0; y < attentionMapSize; y++ {
		for x := 0; x < attentionMapSize; x++ {
			f := features[(y*attentionMapSize+x)%len(features)]
			noise := float64(splitmix64(&state)>>11) / float64(1<<53)
			v := logistic(f*8 + noise*0.25)
			img.SetGray(x, y, color.Gray{Y: uint8(v * 255)})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
