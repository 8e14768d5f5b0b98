package quality

import (
	"path/filepath"
	"regexp"
	"strings"
)

var typePatterns = []struct {
	docType DocumentType
	re      *regexp.Regexp
}{
	{TypeTaxForm, regexp.MustCompile(`tax|w-?2|w-?9|1099|1040|p60|p45|vat[-_ ]?return|hmrc`)},
	{TypePayslip, regexp.MustCompile(`payslip|pay[-_ ]?slip|pay[-_ ]?stub|salary|payroll|wage`)},
	{TypeStatement, regexp.MustCompile(`statement|stmt|bank|account[-_ ]?summary`)},
	{TypeReceipt, regexp.MustCompile(`receipt|rcpt|till|purchase`)},
	{TypeInvoice, regexp.MustCompile(`invoice|inv[-_ ]?\d|bill|facture|rechnung`)},
}

// InferType guesses the document type from keywords in the file name.
func InferType(fileName string) DocumentType {
	base := strings.ToLower(filepath.Base(fileName))
	for _, p := range typePatterns {
		if p.re.MatchString(base) {
			return p.docType
		}
	}
	return TypeOther
}

type template struct {
	id, label, expected string
}

var templates = map[DocumentType][]template{
	TypeInvoice: {
		{"vendor", "Vendor details", "Supplier name and address are legible"},
		{"invoice_number", "Invoice number", "Invoice or reference number is visible"},
		{"dates", "Dates", "Issue date and due date are visible"},
		{"line_items", "Line items", "Line descriptions and amounts can be read"},
		{"totals", "Totals", "Subtotal, tax and total amounts are visible"},
	},
	TypeReceipt: {
		{"merchant", "Merchant", "Merchant name is visible"},
		{"transaction_date", "Transaction date", "Purchase date is visible"},
		{"total_paid", "Total paid", "Total amount paid is legible"},
		{"payment_method", "Payment method", "Card or cash indicator is visible"},
	},
	TypeStatement: {
		{"account_holder", "Account holder", "Account name and number are visible"},
		{"period", "Statement period", "Start and end dates are visible"},
		{"balances", "Balances", "Opening and closing balances are legible"},
		{"transactions", "Transactions", "Every transaction row can be read"},
	},
	TypePayslip: {
		{"parties", "Employer and employee", "Both names are visible"},
		{"pay_period", "Pay period", "Pay period dates are visible"},
		{"gross_net", "Gross and net pay", "Gross and net amounts are legible"},
		{"deductions", "Deductions", "Tax and other deductions are itemised"},
	},
	TypeTaxForm: {
		{"taxpayer_id", "Taxpayer identifier", "Tax reference number is visible"},
		{"tax_year", "Tax year", "Tax year or period is visible"},
		{"form_id", "Form identifier", "Form name or number is visible"},
		{"amounts", "Amounts", "Reported amounts are legible"},
	},
	TypeOther: {
		{"document_date", "Document date", "A date is visible"},
		{"counterparty", "Counterparty", "The other party is named"},
		{"amounts", "Amounts", "Monetary amounts are legible"},
	},
}

// Checklist builds the unflagged checklist for a document type.
func Checklist(docType DocumentType) []ChecklistItem {
	items := templates[docType]
	if items == nil {
		items = templates[TypeOther]
	}
	out := make([]ChecklistItem, 0, len(items))
	for _, it := range items {
		out = append(out, ChecklistItem{ID: it.id, Label: it.label, Expected: it.expected})
	}
	return out
}

func flagAll(items []ChecklistItem) {
	for i := range items {
		items[i].Flagged = true
	}
}
