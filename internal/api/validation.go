package api

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"cds-backend/internal/core"
	"cds-backend/pkg/api"
)

// ValidateRequest checks a submission synchronously, before anything is
// persisted or enqueued. It is a pure function of the request: failures come
// back as 422 with a field-specific message and nothing else happens.
// Validation covers structure only; payload content problems (corrupt image
// bytes, malformed CSV rows) surface later, during inference.
func ValidateRequest(req api.InferenceRequest, family core.ModelFamily) (*core.Input, error) {
	if req.JobId == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "job_id is required")
	}

	if req.SubjectId == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "subject_id is required")
	}

	if err := validateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	if req.Mode != api.ModeManual && req.Mode != api.ModeAuto {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "mode must be %q or %q", api.ModeManual, api.ModeAuto)
	}

	switch family {
	case core.FamilyImaging:
		if err := validateImagePayload(req.ImageB64, true); err != nil {
			return nil, err
		}

	case core.FamilyGenomic:
		if req.GeneCSV == "" {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "gene_csv is required")
		}

	case core.FamilyMultimodal:
		if err := validateMultimodalPayload(req); err != nil {
			return nil, err
		}

	default:
		return nil, CodedErrorf(http.StatusInternalServerError, "unknown model family %s", family)
	}

	return &core.Input{
		JobId:           req.JobId,
		SubjectId:       req.SubjectId,
		Mode:            req.Mode,
		ImageB64:        req.ImageB64,
		GeneCSV:         req.GeneCSV,
		ProteinCSV:      req.ProteinCSV,
		ImagingFeatures: req.ImagingFeatures,
		GeneFeatures:    req.GeneFeatures,
		ProteinFeatures: req.ProteinFeatures,
	}, nil
}

func validateCallbackURL(callbackURL string) error {
	if callbackURL == "" {
		return CodedErrorf(http.StatusUnprocessableEntity, "callback_url is required")
	}

	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return CodedErrorf(http.StatusUnprocessableEntity, "callback_url is not a valid url: %v", err)
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return CodedErrorf(http.StatusUnprocessableEntity, "callback_url must be an absolute http or https url")
	}

	return nil
}

func validateImagePayload(imageB64 string, required bool) error {
	if imageB64 == "" {
		if required {
			return CodedErrorf(http.StatusUnprocessableEntity, "image_b64 is required")
		}
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return CodedErrorf(http.StatusUnprocessableEntity, "image_b64 is not valid base64")
	}
	if len(decoded) == 0 {
		return CodedErrorf(http.StatusUnprocessableEntity, "image_b64 decodes to an empty payload")
	}

	return nil
}

// validateMultimodalPayload accepts any subset of the three modalities, each
// supplied either raw or as a pre-extracted feature vector, but requires at
// least one of them.
func validateMultimodalPayload(req api.InferenceRequest) error {
	hasImaging := req.ImageB64 != "" || len(req.ImagingFeatures) > 0
	hasGene := req.GeneCSV != "" || len(req.GeneFeatures) > 0
	hasProtein := req.ProteinCSV != "" || len(req.ProteinFeatures) > 0

	if !hasImaging && !hasGene && !hasProtein {
		return CodedErrorf(http.StatusUnprocessableEntity, "at least one modality payload is required (imaging, gene, or protein)")
	}

	if err := validateImagePayload(req.ImageB64, false); err != nil {
		return err
	}

	if len(req.ImagingFeatures) > 0 && len(req.ImagingFeatures) != core.ImagingFeatureDim {
		return CodedErrorf(http.StatusUnprocessableEntity, "imaging_features must have %d values, got %d", core.ImagingFeatureDim, len(req.ImagingFeatures))
	}
	if len(req.GeneFeatures) > 0 && len(req.GeneFeatures) != core.GeneFeatureDim {
		return CodedErrorf(http.StatusUnprocessableEntity, "gene_features must have %d values, got %d", core.GeneFeatureDim, len(req.GeneFeatures))
	}
	if len(req.ProteinFeatures) > 0 && len(req.ProteinFeatures) != core.ProteinFeatureDim {
		return CodedErrorf(http.StatusUnprocessableEntity, "protein_features must have %d values, got %d", core.ProteinFeatureDim, len(req.ProteinFeatures))
	}

	return nil
}
