package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtorres/chrono-archiver/internal/api"
	"github.com/mtorres/chrono-archiver/internal/chrono"
	"github.com/mtorres/chrono-archiver/internal/config"
	"github.com/mtorres/chrono-archiver/internal/signature"
	"github.com/mtorres/chrono-archiver/internal/utils"
)

const (
	testSecret = "topsecret"
	testMarker = "Dr. Michael Stone"
)

type fakeNoteClient struct {
	note          *chrono.ClinicalNote
	noteErr       error
	pdf           []byte
	pdfErr        error
	fetchCalls    []string
	downloadCalls []string
}

func (f *fakeNoteClient) FetchNote(ctx context.Context, noteID string, reqID string) (*chrono.ClinicalNote, error) {
	f.fetchCalls = append(f.fetchCalls, noteID)
	if f.noteErr != nil {
		return nil, f.noteErr
	}
	return f.note, nil
}

func (f *fakeNoteClient) DownloadPDF(ctx context.Context, pdfURL string, reqID string) ([]byte, error) {
	f.downloadCalls = append(f.downloadCalls, pdfURL)
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return f.pdf, nil
}

type fakeArchiver struct {
	uploadedKeys []string
	err          error
}

func (f *fakeArchiver) Key(noteID string) string {
	return fmt.Sprintf("chrono-webhook/note_%s.pdf", noteID)
}

func (f *fakeArchiver) Upload(ctx context.Context, key string, pdfBytes []byte, reqID string) error {
	f.uploadedKeys = append(f.uploadedKeys, key)
	return f.err
}

type fakeClassifier struct {
	found     bool
	panicWith any
	markers   []string
}

func (f *fakeClassifier) ContainsMarker(pdfBytes []byte, marker string) bool {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.markers = append(f.markers, marker)
	return f.found
}

func testConfig(secret string) *config.Config {
	return &config.Config{
		Chrono: config.ChronoConfig{WebhookSecret: secret},
		Archive: config.ArchiveConfig{
			Bucket:         "clinical-registry-bucket",
			KeyPrefix:      "chrono-webhook",
			ProviderMarker: testMarker,
		},
	}
}

func newTestHandler(notes *fakeNoteClient, classifier *fakeClassifier, archiver *fakeArchiver) *api.Handler {
	return api.NewHandler(utils.NewDiscardLogger(), notes, classifier, archiver, testConfig(testSecret))
}

func postSigned(handler *api.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set(signature.Header, signature.Digest(testSecret, []byte(body)))

	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var m map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestVerificationHandshake(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	req := httptest.NewRequest("GET", "/webhook?msg=hello-drchrono", nil)
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q, want application/json", got)
	}

	want := map[string]string{
		"secret_token": signature.Digest(testSecret, []byte("hello-drchrono")),
	}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("handshake response mismatch (-want +got):\n%s", diff)
	}
}

func TestVerificationHandshakeUsesFirstMsgValue(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	req := httptest.NewRequest("GET", "/webhook?msg=first&msg=second", nil)
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	want := map[string]string{"secret_token": signature.Digest(testSecret, []byte("first"))}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("handshake response mismatch (-want +got):\n%s", diff)
	}
}

func TestVerificationHandshakeMissingMsg(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	req := httptest.NewRequest("GET", "/webhook", nil)
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := rec.Body.String(); got != "Missing msg parameter" {
		t.Errorf("body = %q, want plain missing-parameter message", got)
	}
}

func TestVerificationHandshakeUnconfiguredSecret(t *testing.T) {
	handler := api.NewHandler(utils.NewDiscardLogger(),
		&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{}, testConfig(""))

	req := httptest.NewRequest("GET", "/webhook?msg=hello", nil)
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when no secret is configured", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	for _, method := range []string{"PUT", "DELETE", "PATCH"} {
		req := httptest.NewRequest(method, "/webhook", nil)
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", method, rec.Code)
		}
		if got := rec.Body.String(); got != "Only POST allowed" {
			t.Errorf("%s: body = %q", method, got)
		}
	}
}

func TestReceiverAckSkipsSignatureCheck(t *testing.T) {
	notes := &fakeNoteClient{}
	handler := newTestHandler(notes, &fakeClassifier{}, &fakeArchiver{})

	// no signature header at all
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(`{"receiver": "x"}`)))
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "" {
		t.Errorf("body = %q, want empty", got)
	}
	if len(notes.fetchCalls) != 0 {
		t.Errorf("receiver ack reached the note pipeline: %v", notes.fetchCalls)
	}
}

func TestInvalidSignatureRejected(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	body := `{"id": 1234}`
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set(signature.Header, signature.Digest("wrong-secret", []byte(body)))
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	want := map[string]string{"error": "Invalid signature"}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingSignatureRejected(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(`{"id": 1234}`)))
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMissingNoteID(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	rec := postSigned(handler, `{"event": "clinical_note_locked"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	want := map[string]string{"error": "No note ID in webhook payload"}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedJSONBecomesEmptyPayload(t *testing.T) {
	handler := newTestHandler(&fakeNoteClient{}, &fakeClassifier{}, &fakeArchiver{})

	// signature is valid over the literal bytes, so the request reaches the
	// id lookup, which then fails on the empty payload
	rec := postSigned(handler, `{{{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	want := map[string]string{"error": "No note ID in webhook payload"}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestNoteIDExtraction(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"numeric id", `{"id": 1234}`, "1234"},
		{"string id", `{"id": "1234"}`, "1234"},
		{"clinical_note fallback", `{"clinical_note": 77}`, "77"},
		{"object_id fallback", `{"object_id": "abc-9"}`, "abc-9"},
		{"id wins over clinical_note", `{"id": 1, "clinical_note": 2}`, "1"},
		{"empty id falls through", `{"id": "", "object_id": "z"}`, "z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notes := &fakeNoteClient{note: &chrono.ClinicalNote{}}
			handler := newTestHandler(notes, &fakeClassifier{}, &fakeArchiver{})

			postSigned(handler, tc.body)

			if diff := cmp.Diff([]string{tc.want}, notes.fetchCalls); diff != "" {
				t.Errorf("fetched note ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNoPDF(t *testing.T) {
	notes := &fakeNoteClient{note: &chrono.ClinicalNote{ID: 1234}}
	handler := newTestHandler(notes, &fakeClassifier{}, &fakeArchiver{})

	rec := postSigned(handler, `{"id": 1234}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := map[string]string{"status": "no_pdf"}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if len(notes.downloadCalls) != 0 {
		t.Errorf("PDF download attempted for a note without a PDF: %v", notes.downloadCalls)
	}
}

func TestUploaded(t *testing.T) {
	notes := &fakeNoteClient{
		note: &chrono.ClinicalNote{ID: 1234, PDF: "https://cdn.example.com/note.pdf"},
		pdf:  []byte("%PDF-1.4 content"),
	}
	classifier := &fakeClassifier{found: true}
	archiver := &fakeArchiver{}
	handler := newTestHandler(notes, classifier, archiver)

	rec := postSigned(handler, `{"id": 1234}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := map[string]string{
		"status": "uploaded",
		"s3_key": "chrono-webhook/note_1234.pdf",
	}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"chrono-webhook/note_1234.pdf"}, archiver.uploadedKeys); diff != "" {
		t.Errorf("uploaded keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{testMarker}, classifier.markers); diff != "" {
		t.Errorf("classifier marker mismatch (-want +got):\n%s", diff)
	}
}

func TestProviderNotFound(t *testing.T) {
	notes := &fakeNoteClient{
		note: &chrono.ClinicalNote{ID: 1234, PDF: "https://cdn.example.com/note.pdf"},
		pdf:  []byte("%PDF-1.4 content"),
	}
	archiver := &fakeArchiver{}
	handler := newTestHandler(notes, &fakeClassifier{found: false}, archiver)

	rec := postSigned(handler, `{"id": 1234}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := map[string]string{"status": "provider_not_found"}
	if diff := cmp.Diff(want, decodeJSON(t, rec)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if len(archiver.uploadedKeys) != 0 {
		t.Errorf("archiver invoked despite missing marker: %v", archiver.uploadedKeys)
	}
}

func TestUpstreamErrorsBecome500(t *testing.T) {
	cases := []struct {
		name  string
		notes *fakeNoteClient
	}{
		{"note fetch fails", &fakeNoteClient{noteErr: errors.New("API error 502: Bad Gateway")}},
		{"pdf download fails", &fakeNoteClient{
			note:   &chrono.ClinicalNote{ID: 1, PDF: "https://cdn.example.com/note.pdf"},
			pdfErr: errors.New("failed to download PDF"),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(tc.notes, &fakeClassifier{found: true}, &fakeArchiver{})

			rec := postSigned(handler, `{"id": 1}`)

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}
			if got := decodeJSON(t, rec)["error"]; got == "" {
				t.Error("error message missing from 500 response")
			}
		})
	}
}

func TestUploadFailureBecomes500(t *testing.T) {
	notes := &fakeNoteClient{
		note: &chrono.ClinicalNote{ID: 1, PDF: "https://cdn.example.com/note.pdf"},
		pdf:  []byte("%PDF-1.4 content"),
	}
	archiver := &fakeArchiver{err: errors.New("failed to upload PDF to S3: access denied")}
	handler := newTestHandler(notes, &fakeClassifier{found: true}, archiver)

	rec := postSigned(handler, `{"id": 1}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestPipelinePanicBecomes500(t *testing.T) {
	notes := &fakeNoteClient{
		note: &chrono.ClinicalNote{ID: 1, PDF: "https://cdn.example.com/note.pdf"},
		pdf:  []byte("%PDF-1.4 content"),
	}
	handler := newTestHandler(notes, &fakeClassifier{panicWith: "corrupt xref"}, &fakeArchiver{})

	rec := postSigned(handler, `{"id": 1}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 from recovered panic", rec.Code)
	}
}
