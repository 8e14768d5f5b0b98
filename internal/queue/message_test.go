package queue

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeOCRJobFieldNames(t *testing.T) {
	payload, err := EncodeMessage(OCRJob{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		StorageKey: "tenants/tenant-1/documents/doc-1/invoice.pdf",
		Trigger:    "ocr_enqueued",
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    MessageVersion,
	})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	for _, want := range []string{`"documentId":"doc-1"`, `"storageKey":"tenants/tenant-1/documents/doc-1/invoice.pdf"`, `"version":1`} {
		if !strings.Contains(string(payload), want) {
			t.Fatalf("expected %s in %s", want, payload)
		}
	}
	if strings.Contains(string(payload), "mimeType") {
		t.Fatalf("empty mimeType should be omitted: %s", payload)
	}
}

func TestDecodeResult(t *testing.T) {
	msg, err := DecodeResult([]byte(`{"documentId":" doc-1 ","tenantId":"tenant-1","status":"EXTRACTED","extractedData":{"rawText":"total 12"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.DocumentID != "doc-1" || msg.Status != "EXTRACTED" || msg.ExtractedData["rawText"] != "total 12" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestDecodeResultRejectsIncompleteMessages(t *testing.T) {
	cases := map[string]error{
		`{"tenantId":"t","status":"ERROR"}`:   ErrMissingDocumentID,
		`{"documentId":"d","status":"ERROR"}`: ErrMissingTenantID,
		`{"documentId":"d","tenantId":"t"}`:   ErrMissingStatus,
	}
	for body, want := range cases {
		if _, err := DecodeResult([]byte(body)); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", body, want, err)
		}
	}
	if _, err := DecodeResult([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("bad payload")
	err := Permanent(base)
	if !errors.Is(err, ErrPermanent) || !errors.Is(err, base) {
		t.Fatalf("expected both sentinels, got %v", err)
	}
	if Permanent(nil) != nil {
		t.Fatalf("expected nil")
	}
}
