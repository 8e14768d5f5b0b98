package quality

import (
	"errors"
	"fmt"

	"intake-backend/internal/extract"
)

// Thresholds tune the scorer. Zero values fall back to DefaultThresholds.
type Thresholds struct {
	TooSmallBytes      int64
	TooLargeBytes      int64
	MaxPages           int
	MinCharsPerPage    int
	MinImageSide       int
	MinAspect          float64
	MaxAspect          float64
	MinBytesPerMegapix float64
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TooSmallBytes:      20 * 1024,
		TooLargeBytes:      15 << 20,
		MaxPages:           25,
		MinCharsPerPage:    50,
		MinImageSide:       1000,
		MinAspect:          0.4,
		MaxAspect:          2.5,
		MinBytesPerMegapix: 120 * 1024,
	}
}

// Scorer evaluates files before they enter the pipeline. It holds no state
// beyond its thresholds and is safe for concurrent use.
type Scorer struct {
	T Thresholds
}

// NewScorer returns a scorer with the default thresholds.
func NewScorer() *Scorer {
	return &Scorer{T: DefaultThresholds()}
}

type assessment struct {
	score     int
	issues    []Issue
	checklist []ChecklistItem
}

func (a *assessment) add(issue Issue, penalty int, flag bool) {
	a.issues = append(a.issues, issue)
	a.score -= penalty
	if flag {
		flagAll(a.checklist)
	}
}

// Assess scores one file.
func (s *Scorer) Assess(in Input) Result {
	t := s.T
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}

	docType := in.DeclaredType
	if _, ok := ParseDocumentType(string(docType)); !ok {
		docType = InferType(in.FileName)
	}

	a := &assessment{score: 100, checklist: Checklist(docType)}
	size := int64(len(in.Data))

	if size < t.TooSmallBytes {
		a.add(Issue{
			ID:             "file_too_small",
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("File is only %d KB and may be unreadable", size/1024),
			Recommendation: "Upload the original file or a higher quality scan",
		}, 15, true)
	} else if size > t.TooLargeBytes {
		a.add(Issue{
			ID:             "file_too_large",
			Severity:       SeverityInfo,
			Message:        fmt.Sprintf("File is %d MB and will take longer to process", size>>20),
			Recommendation: "Compress the file or split it into separate documents",
		}, 5, false)
	}

	mimeType := extract.NormalizeMimeType(in.MimeType, in.FileName, in.Data)
	pageCount := 0

	switch extract.KindOf(mimeType) {
	case extract.KindPDF:
		pageCount = s.assessPDF(a, t, in.Data)
	case extract.KindImage:
		pageCount = 1
		s.assessImage(a, t, mimeType, in.Data, size)
	case extract.KindCSV:
		a.add(Issue{
			ID:             "csv_format",
			Severity:       SeverityInfo,
			Message:        "CSV files are only accepted for bank statement imports",
			Recommendation: "Upload a PDF or image for documents other than bank statements",
		}, 5, false)
	}

	return Result{
		Score:         clamp(a.score),
		Issues:        nonNilIssues(a.issues),
		Checklist:     a.checklist,
		PageCount:     pageCount,
		SuggestedType: docType,
	}
}

func (s *Scorer) assessPDF(a *assessment, t Thresholds, data []byte) int {
	info, err := extract.InspectPDF(data)
	if err != nil {
		a.add(Issue{
			ID:             "pdf_unreadable",
			Severity:       SeverityCritical,
			Message:        "The PDF could not be parsed; it may be corrupt or password protected",
			Recommendation: "Remove the password or export the PDF again",
		}, 35, false)
		return 0
	}

	if info.Pages > t.MaxPages {
		a.add(Issue{
			ID:             "too_many_pages",
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("PDF has %d pages; at most %d are recommended", info.Pages, t.MaxPages),
			Recommendation: "Split multi-document PDFs into one file per document",
		}, 10, false)
	}
	if info.TextChars/info.Pages < t.MinCharsPerPage {
		a.add(Issue{
			ID:             "missing_content",
			Severity:       SeverityCritical,
			Message:        "Little or no text could be read from the PDF",
			Recommendation: "Upload a text based PDF or a clearer scan",
		}, 35, true)
	}
	return info.Pages
}

func (s *Scorer) assessImage(a *assessment, t Thresholds, mimeType string, data []byte, size int64) {
	info, err := extract.InspectImage(data)
	if errors.Is(err, extract.ErrUnsupportedImage) && !extract.Decodable(mimeType) {
		a.add(Issue{
			ID:             "image_format_unverified",
			Severity:       SeverityWarning,
			Message:        "Image resolution and sharpness could not be checked for this format",
			Recommendation: "Convert HEIC photos to JPEG or PNG before uploading",
		}, 10, false)
		return
	}
	if err != nil {
		a.add(Issue{
			ID:             "image_unreadable",
			Severity:       SeverityCritical,
			Message:        "The image could not be decoded",
			Recommendation: "Export the image again as PNG or JPEG",
		}, 25, false)
		return
	}

	minSide := info.Width
	if info.Height < minSide {
		minSide = info.Height
	}
	if minSide < t.MinImageSide {
		a.add(Issue{
			ID:             "low_resolution",
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("Image is %dx%d pixels; small text may be unreadable", info.Width, info.Height),
			Recommendation: fmt.Sprintf("Scan or photograph at %d pixels or more on the short side", t.MinImageSide),
		}, 15, true)
	}

	aspect := float64(info.Width) / float64(info.Height)
	if aspect < t.MinAspect || aspect > t.MaxAspect {
		a.add(Issue{
			ID:             "unusual_aspect_ratio",
			Severity:       SeverityInfo,
			Message:        "Image proportions suggest the document is cropped or includes background",
			Recommendation: "Crop the photo to the document edges",
		}, 5, false)
	}

	megapixels := float64(info.Width) * float64(info.Height) / 1e6
	if megapixels > 0 && float64(size)/megapixels < t.MinBytesPerMegapix {
		a.add(Issue{
			ID:             "over_compressed",
			Severity:       SeverityWarning,
			Message:        "Image appears blurry or heavily compressed",
			Recommendation: "Retake the photo in good light with the camera held steady",
		}, 20, true)
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func nonNilIssues(issues []Issue) []Issue {
	if issues == nil {
		return []Issue{}
	}
	return issues
}
