package extracttest

import (
	"bytes"
	"fmt"
	"strings"
)

// PDF renders a minimal single-font PDF with one text line per page and
// pads the file with comment bytes until it reaches minSize.
func PDF(pages []string, minSize int) []byte {
	var buf bytes.Buffer
	var offsets []int

	write := func(format string, args ...any) {
		fmt.Fprintf(&buf, format, args...)
	}
	startObj := func() {
		offsets = append(offsets, buf.Len())
	}

	write("%%PDF-1.4\n")

	n := len(pages)
	fontObj := 3
	firstPage := 4

	startObj()
	write("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+2*i)
	}
	startObj()
	write("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	startObj()
	write("%d 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>\nendobj\n", fontObj)

	for i, text := range pages {
		pageObj := firstPage + 2*i
		contentObj := pageObj + 1
		startObj()
		write("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>\nendobj\n", pageObj, fontObj, contentObj)

		stream := fmt.Sprintf("BT\n/F1 10 Tf\n36 720 Td\n(%s) Tj\nET\n", escapePDF(text))
		startObj()
		write("%d 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n", contentObj, len(stream), stream)
	}

	for buf.Len() < minSize-400 {
		write("%% padding %s\n", strings.Repeat("0", 60))
	}

	xref := buf.Len()
	write("xref\n0 %d\n", len(offsets)+1)
	write("0000000000 65535 f \n")
	for _, off := range offsets {
		write("%010d 00000 n \n", off)
	}
	write("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
