package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyAttachment  = errors.New("attachment has no content")
	ErrUndecodable      = errors.New("attachment content is not valid base64")
	ErrRemoteAttachment = errors.New("remote attachments are not fetched")
)

// RawAttachment is an attachment as delivered by a channel. Field aliases
// cover the shapes different senders use.
type RawAttachment struct {
	Filename      string `json:"filename,omitempty"`
	Name          string `json:"name,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	Content       string `json:"content,omitempty"`
	ContentBase64 string `json:"contentBase64,omitempty"`
	Data          string `json:"data,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
	URL           string `json:"url,omitempty"`
}

// FileName returns the first populated name alias.
func (a RawAttachment) FileName() string {
	return firstNonEmpty(a.Filename, a.Name)
}

// Type returns the first populated content type alias.
func (a RawAttachment) Type() string {
	return firstNonEmpty(a.ContentType, a.MimeType)
}

// Decode returns the attachment bytes. Content is base64 unless Encoding
// says raw, and may be a data URI.
func (a RawAttachment) Decode() ([]byte, error) {
	content := firstNonEmpty(a.ContentBase64, a.Content, a.Data)
	if content == "" {
		if strings.TrimSpace(a.URL) != "" {
			return nil, ErrRemoteAttachment
		}
		return nil, ErrEmptyAttachment
	}

	switch strings.ToLower(strings.TrimSpace(a.Encoding)) {
	case "raw", "utf8", "utf-8", "text":
		return []byte(content), nil
	}

	if strings.HasPrefix(content, "data:") {
		comma := strings.IndexByte(content, ',')
		if comma < 0 {
			return nil, ErrUndecodable
		}
		meta := content[len("data:"):comma]
		payload := content[comma+1:]
		if !strings.HasSuffix(meta, ";base64") {
			return []byte(payload), nil
		}
		content = payload
	}
	return decodeBase64(content)
}

// mediaTypeFromDataURI returns the declared type of a data URI, if any.
func (a RawAttachment) mediaTypeFromDataURI() string {
	content := firstNonEmpty(a.ContentBase64, a.Content, a.Data)
	if !strings.HasPrefix(content, "data:") {
		return ""
	}
	end := strings.IndexAny(content, ";,")
	if end < 0 {
		return ""
	}
	return content[len("data:"):end]
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(clean); err == nil {
			if len(out) == 0 {
				return nil, ErrEmptyAttachment
			}
			return out, nil
		}
	}
	return nil, ErrUndecodable
}

// attachmentFromMap reads an attachment out of an untyped webhook object.
func attachmentFromMap(m map[string]any) (RawAttachment, bool) {
	str := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		return ""
	}
	a := RawAttachment{
		Filename:      str("filename", "fileName", "name"),
		ContentType:   str("contentType", "mimeType", "content_type", "mime_type"),
		Content:       str("content"),
		ContentBase64: str("contentBase64", "content_base64"),
		Data:          str("data"),
		Encoding:      str("encoding"),
		URL:           str("url"),
	}
	if a.Content == "" && a.ContentBase64 == "" && a.Data == "" && a.URL == "" {
		return RawAttachment{}, false
	}
	return a, true
}

// nestedAttachments collects attachments from data.documents[],
// data.attachments[], data.files[], data.document and data.file.
func nestedAttachments(data map[string]any) []RawAttachment {
	var out []RawAttachment
	for _, key := range []string{"documents", "attachments", "files"} {
		items, ok := data[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				if a, ok := attachmentFromMap(m); ok {
					out = append(out, a)
				}
			}
		}
	}
	for _, key := range []string{"document", "file"} {
		if m, ok := data[key].(map[string]any); ok {
			if a, ok := attachmentFromMap(m); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func fallbackName(index int, mimeType string) string {
	ext := ".bin"
	switch {
	case mimeType == "application/pdf":
		ext = ".pdf"
	case mimeType == "image/png":
		ext = ".png"
	case mimeType == "image/jpeg":
		ext = ".jpg"
	case mimeType == "text/csv":
		ext = ".csv"
	case mimeType == "application/xml":
		ext = ".xml"
	}
	return fmt.Sprintf("attachment-%d%s", index+1, ext)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
