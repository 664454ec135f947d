package core

import (
	"context"
	"sort"
	"time"

	"cds-backend/pkg/api"
)

const multimodalDefaultSeed = 0x6d756c74696d6f

// MultimodalModel is the fused (MM) inference service. It accepts any subset
// of the imaging/gene/protein modalities; missing modalities degrade to
// partial inference over what is present, recorded in ModalitiesUsed, and
// are never silently fabricated.
type MultimodalModel struct {
	seed uint64
}

var _ Model = (*MultimodalModel)(nil)

func LoadMultimodalModel(modelDir string) (*MultimodalModel, error) {
	seed, err := loadSeed(modelDir, multimodalDefaultSeed)
	if err != nil {
		return nil, err
	}
	return &MultimodalModel{seed: seed}, nil
}

func (m *MultimodalModel) Predict(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()

	modalityFeatures := make(map[string][]float64)

	imaging, err := m.imagingFeatures(input)
	if err != nil {
		return nil, err
	}
	if imaging != nil {
		modalityFeatures[ModalityImaging] = imaging
	}

	gene, err := modalityVector(input.GeneCSV, input.GeneFeatures, GeneFeatureDim, ModalityGene, parseGeneFeatures)
	if err != nil {
		return nil, err
	}
	if gene != nil {
		modalityFeatures[ModalityGene] = gene
	}

	protein, err := modalityVector(input.ProteinCSV, input.ProteinFeatures, ProteinFeatureDim, ModalityProtein, parseProteinFeatures)
	if err != nil {
		return nil, err
	}
	if protein != nil {
		modalityFeatures[ModalityProtein] = protein
	}

	if len(modalityFeatures) == 0 {
		return nil, InputErrorf("multimodal inference requires at least one of imaging, gene, or protein inputs")
	}

	used := make([]string, 0, len(modalityFeatures))
	for modality := range modalityFeatures {
		used = append(used, modality)
	}
	sort.Strings(used)

	fused := make([]float64, 0, ImagingFeatureDim+GeneFeatureDim+ProteinFeatureDim)
	for _, modality := range used {
		fused = append(fused, modalityFeatures[modality]...)
	}

	predictions := map[string]api.Prediction{
		FieldSurvival:    classPrediction(fused, m.seed, 1, survivalLabels),
		FieldGrade:       classPrediction(fused, m.seed, 2, gradeLabels),
		FieldRecurrence:  binaryPrediction(fused, m.seed, 3, "recurrence", "no_recurrence"),
		FieldTMZResponse: binaryPrediction(fused, m.seed, 4, "responder", "non_responder"),
	}

	// Radiomic risk is derived from imaging features alone; it is omitted
	// rather than fabricated when imaging is absent.
	if imaging != nil {
		predictions[FieldRadiomic] = binaryPrediction(imaging, m.seed, 5, "high_risk", "low_risk")
	}

	dump, err := jsonArtifact(map[string]any{
		"modalities_used": used,
		"fused_dim":       len(fused),
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Predictions:    predictions,
		ModalitiesUsed: used,
		Artifacts: map[string]api.FilePayload{
			"fusion_summary.json": {Content: dump, Type: "application/json"},
		},
		ProcessingTime: time.Since(start),
	}, nil
}

func (m *MultimodalModel) Release() {}

func (m *MultimodalModel) imagingFeatures(input *Input) ([]float64, error) {
	if input.ImageB64 != "" {
		return ExtractImagingFeatures(input.ImageB64)
	}
	if input.ImagingFeatures != nil {
		if len(input.ImagingFeatures) != ImagingFeatureDim {
			return nil, InputErrorf("imaging feature vector has dimension %d, expected %d", len(input.ImagingFeatures), ImagingFeatureDim)
		}
		return input.ImagingFeatures, nil
	}
	return nil, nil
}

// modalityVector resolves one modality from either its raw payload or a
// pre-extracted feature vector of the declared dimensionality.
func modalityVector(raw string, features []float64, dim int, modality string, parse func(string) ([]float64, error)) ([]float64, error) {
	if raw != "" {
		return parse(raw)
	}
	if features != nil {
		if len(features) != dim {
			return nil, InputErrorf("%s feature vector has dimension %d, expected %d", modality, len(features), dim)
		}
		return features, nil
	}
	return nil, nil
}

func parseGeneFeatures(text string) ([]float64, error) {
	expression, err := ParseExpressionCSV(text)
	if err != nil {
		return nil, err
	}
	return hashFeatureVector(expression, GeneFeatureDim), nil
}

func parseProteinFeatures(text string) ([]float64, error) {
	abundance, err := ParseProteinCSV(text)
	if err != nil {
		return nil, err
	}
	return hashFeatureVector(abundance, ProteinFeatureDim), nil
}
