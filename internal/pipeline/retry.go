package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"intake-backend/internal/documents"
)

// ErrNotEligible is returned for documents whose status cannot be retried.
var ErrNotEligible = errors.New("not eligible for retry")

var rawTextKeys = []string{"rawText", "raw_text", "text"}

const classificationKey = "classification"

// ResolveRetryStage picks the stage a retry should re-run from the current
// status and whatever workers already extracted.
func ResolveRetryStage(status documents.Status, extracted map[string]any, storageKey string) (documents.Stage, error) {
	switch status {
	case documents.StatusUploaded, documents.StatusProcessing:
		return ocrStage(storageKey)
	case documents.StatusExtracted:
		if RawText(extracted) == "" {
			return "", documents.Invalid("extractedData.rawText", "required to retry classification")
		}
		return documents.StageClassification, nil
	case documents.StatusClassified:
		return documents.StageLedgerPosting, nil
	case documents.StatusError:
		if RawText(extracted) == "" {
			return ocrStage(storageKey)
		}
		if hasClassification(extracted) {
			return documents.StageLedgerPosting, nil
		}
		return documents.StageClassification, nil
	default:
		return "", fmt.Errorf("%w: status %s", ErrNotEligible, status)
	}
}

// PreState is the status a document is reset to when stage is retried.
func PreState(stage documents.Stage) documents.Status {
	switch stage {
	case documents.StageClassification:
		return documents.StatusExtracted
	case documents.StageLedgerPosting:
		return documents.StatusClassified
	default:
		return documents.StatusProcessing
	}
}

// RawText returns the first non-empty raw text field in extracted data.
func RawText(extracted map[string]any) string {
	for _, key := range rawTextKeys {
		if s, ok := extracted[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Classification returns the classification payload, if any.
func Classification(extracted map[string]any) map[string]any {
	switch v := extracted[classificationKey].(type) {
	case map[string]any:
		return v
	case string:
		if strings.TrimSpace(v) != "" {
			return map[string]any{"label": v}
		}
	}
	return nil
}

func hasClassification(extracted map[string]any) bool {
	return len(Classification(extracted)) > 0
}

func ocrStage(storageKey string) (documents.Stage, error) {
	if strings.TrimSpace(storageKey) == "" {
		return "", documents.Invalid("storageKey", "required to retry ocr")
	}
	return documents.StageOCR, nil
}
