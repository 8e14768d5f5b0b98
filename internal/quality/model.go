package quality

import "strings"

// DocumentType is the declared or inferred kind of financial document.
type DocumentType string

const (
	TypeInvoice   DocumentType = "invoice"
	TypeReceipt   DocumentType = "receipt"
	TypeStatement DocumentType = "statement"
	TypePayslip   DocumentType = "payslip"
	TypeTaxForm   DocumentType = "tax_form"
	TypeOther     DocumentType = "other"
)

// ParseDocumentType returns the matching type and whether raw named one.
func ParseDocumentType(raw string) (DocumentType, bool) {
	switch DocumentType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeInvoice:
		return TypeInvoice, true
	case TypeReceipt:
		return TypeReceipt, true
	case TypeStatement:
		return TypeStatement, true
	case TypePayslip:
		return TypePayslip, true
	case TypeTaxForm:
		return TypeTaxForm, true
	case TypeOther:
		return TypeOther, true
	}
	return "", false
}

// Severity ranks an issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is one finding from an assessment.
type Issue struct {
	ID             string   `json:"id"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// ChecklistItem is an expected field for the document type.
type ChecklistItem struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Expected string `json:"expected"`
	Flagged  bool   `json:"flagged"`
}

// Result is the outcome of assessing one file.
type Result struct {
	Score         int             `json:"score"`
	Issues        []Issue         `json:"issues"`
	Checklist     []ChecklistItem `json:"checklist"`
	PageCount     int             `json:"pageCount"`
	SuggestedType DocumentType    `json:"suggestedType"`
}

// HasCritical reports whether any issue is critical.
func (r Result) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Input is the file under assessment.
type Input struct {
	Data         []byte
	FileName     string
	MimeType     string
	DeclaredType DocumentType
}
