package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// Kind is the coarse content family of a file.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindCSV   Kind = "csv"
	KindXML   Kind = "xml"
	KindOther Kind = "other"
)

const (
	mimePDF = "application/pdf"
	mimeCSV = "text/csv"
	mimeXML = "application/xml"
)

// ErrUnsupportedImage is returned when no registered decoder recognizes the image.
var ErrUnsupportedImage = errors.New("unsupported image format")

var imageExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".heic": "image/heic",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// NormalizeMimeType resolves the effective content type from the declared
// type, the file extension and the leading bytes.
func NormalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean != "" && clean != "application/octet-stream" {
		if clean == "text/xml" {
			return mimeXML
		}
		return clean
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".pdf":
		return mimePDF
	case ".csv":
		return mimeCSV
	case ".xml":
		return mimeXML
	}
	if mapped, ok := imageExts[ext]; ok {
		return mapped
	}

	if len(data) > 0 {
		sniffed := strings.Split(http.DetectContentType(data), ";")[0]
		if sniffed == "text/xml" {
			return mimeXML
		}
		return sniffed
	}
	return "application/octet-stream"
}

var decodableImages = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/tiff": true,
}

// Decodable reports whether InspectImage can read images of mimeType.
// HEIC has no pure Go decoder and is not decodable.
func Decodable(mimeType string) bool {
	return decodableImages[mimeType]
}

// KindOf maps a normalized mime type onto a Kind.
func KindOf(mimeType string) Kind {
	switch {
	case mimeType == mimePDF:
		return KindPDF
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case mimeType == mimeCSV:
		return KindCSV
	case mimeType == mimeXML:
		return KindXML
	default:
		return KindOther
	}
}

// PDFInfo summarizes a parsed PDF.
type PDFInfo struct {
	Pages     int
	TextChars int
}

// InspectPDF counts pages and non-whitespace text characters.
func InspectPDF(data []byte) (info PDFInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			info = PDFInfo{}
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFInfo{}, fmt.Errorf("open pdf: %w", err)
	}

	info.Pages = reader.NumPage()
	if info.Pages == 0 {
		return PDFInfo{}, errors.New("pdf has no pages")
	}
	for i := 1; i <= info.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return PDFInfo{}, fmt.Errorf("read page %d: %w", i, err)
		}
		info.TextChars += countVisible(text)
	}
	return info, nil
}

// ImageInfo holds decoded image dimensions.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// InspectImage reads the image header without decoding pixels.
func InspectImage(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return ImageInfo{}, ErrUnsupportedImage
	}
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, errors.New("image has no dimensions")
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func countVisible(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
