package core

import (
	"context"
	"fmt"
	"time"

	"cds-backend/internal/messaging"
	"cds-backend/pkg/api"
)

// ModelFamily identifies one of the inference pipelines.
type ModelFamily string

const (
	FamilyImaging    ModelFamily = "imaging"
	FamilyGenomic    ModelFamily = "genomic"
	FamilyMultimodal ModelFamily = "multimodal"
)

// Modality names recorded in results.
const (
	ModalityImaging = "imaging"
	ModalityGene    = "gene"
	ModalityProtein = "protein"
)

// Fixed feature dimensionalities. Feature vectors supplied directly by the
// caller must match these exactly.
const (
	ImagingFeatureDim = 512
	GeneFeatureDim    = 1000
	ProteinFeatureDim = 221
)

// Static routing table. The queue for a task is chosen here once, at enqueue
// time, and never changes afterward.
var familyQueues = map[ModelFamily]string{
	FamilyImaging:    messaging.ImagingQueue,
	FamilyGenomic:    messaging.GenomicQueue,
	FamilyMultimodal: messaging.MultimodalQueue,
}

func QueueForFamily(family ModelFamily) (string, error) {
	queue, ok := familyQueues[family]
	if !ok {
		return "", fmt.Errorf("unknown model family: %s", family)
	}
	return queue, nil
}

func FamilyForQueue(queue string) (ModelFamily, bool) {
	for family, q := range familyQueues {
		if q == queue {
			return family, true
		}
	}
	return "", false
}

// Input is the canonical, validated request consumed by a model service.
// Exactly this struct is persisted as the task payload, so re-executions see
// the same inputs.
type Input struct {
	JobId     string `json:"job_id"`
	SubjectId string `json:"subject_id"`
	Mode      string `json:"mode"`

	ImageB64   string `json:"image_b64,omitempty"`
	GeneCSV    string `json:"gene_csv,omitempty"`
	ProteinCSV string `json:"protein_csv,omitempty"`

	ImagingFeatures []float64 `json:"imaging_features,omitempty"`
	GeneFeatures    []float64 `json:"gene_features,omitempty"`
	ProteinFeatures []float64 `json:"protein_features,omitempty"`
}

// Result is what a model service hands back to the task wrapper: named
// predictions plus derived artifacts the originating system must persist.
type Result struct {
	Predictions    map[string]api.Prediction
	ModalitiesUsed []string
	Artifacts      map[string]api.FilePayload
	ProcessingTime time.Duration
}

func (r *Result) ToAPI() *api.InferenceResult {
	return &api.InferenceResult{
		Predictions:      r.Predictions,
		ModalitiesUsed:   r.ModalitiesUsed,
		ProcessingTimeMS: r.ProcessingTime.Milliseconds(),
	}
}

// Model is a loaded inference service. Predict is a pure function of the
// input: deterministic for the same weights and inputs, and it never talks
// to the originating system itself.
type Model interface {
	Predict(ctx context.Context, input *Input) (*Result, error)

	Release()
}

type ModelLoader func(modelDir string) (Model, error)

func NewModelLoaders() map[ModelFamily]ModelLoader {
	return map[ModelFamily]ModelLoader{
		FamilyImaging: func(modelDir string) (Model, error) {
			return LoadImagingModel(modelDir)
		},
		FamilyGenomic: func(modelDir string) (Model, error) {
			return LoadGenomicModel(modelDir)
		},
		FamilyMultimodal: func(modelDir string) (Model, error) {
			return LoadMultimodalModel(modelDir)
		},
	}
}
