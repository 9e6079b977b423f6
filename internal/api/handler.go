package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mtorres/chrono-archiver/internal/config"
	"github.com/mtorres/chrono-archiver/internal/document"
	"github.com/mtorres/chrono-archiver/internal/signature"
	"github.com/mtorres/chrono-archiver/internal/utils"
	"github.com/mtorres/chrono-archiver/internal/utils/httputils"
)

// noteIDKeys are the payload fields that may carry the clinical note id,
// in priority order. DrChrono event shapes vary across API versions.
var noteIDKeys = []string{"id", "clinical_note", "object_id"}

type Handler struct {
	logger     *utils.Logger
	chrono     NoteClient
	classifier document.Classifier
	archiver   Archiver
	cfg        *config.Config
}

func NewHandler(
	logger *utils.Logger,
	chrono NoteClient,
	classifier document.Classifier,
	archiver Archiver,
	cfg *config.Config,
) *Handler {
	return &Handler{
		logger:     logger,
		chrono:     chrono,
		classifier: classifier,
		archiver:   archiver,
		cfg:        cfg,
	}
}

// HandleWebhook serves the single DrChrono endpoint. GET is the
// verification handshake, POST carries deliveries; anything else is
// rejected outright.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleDelivery(w, r)
	default:
		httputils.TextResponse(w, http.StatusMethodNotAllowed, "Only POST allowed")
	}
}

// handleVerification answers DrChrono's GET challenge: echo back the HMAC
// of the msg parameter under the shared secret. This path never touches
// the note pipeline.
func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())

	msg := r.URL.Query().Get("msg")
	secret := h.cfg.Chrono.WebhookSecret

	if msg == "" || secret == "" {
		h.logger.Info(&reqID, "Verification request rejected: msg present=%v, secret configured=%v",
			msg != "", secret != "")
		httputils.TextResponse(w, http.StatusBadRequest, "Missing msg parameter")
		return
	}

	h.logger.Info(&reqID, "Answering webhook verification handshake")
	if err := httputils.JSONResponse(w, http.StatusOK, VerificationResponse{
		SecretToken: signature.Digest(secret, []byte(msg)),
	}); err != nil {
		h.logger.Error(&reqID, "Error sending response: %v", err)
	}
}

func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestID(ctx)

	bodyBytes, err := httputils.LogRequestBody(r, h.logger, reqID)
	if err != nil {
		h.logger.Error(&reqID, "Failed to read request body: %v", err)
		httputils.HandleError(w, err)
		return
	}

	// A body that is not valid JSON is treated as an empty payload, never
	// as a client error: the id lookup below then yields the 400.
	var payload map[string]any
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		h.logger.Debug(&reqID, "Unparseable JSON body, treating as empty payload: %v", err)
		payload = map[string]any{}
	}

	// DrChrono's connectivity check carries a receiver key and no
	// signature; it is acked before any verification.
	if _, ok := payload["receiver"]; ok {
		h.logger.Info(&reqID, "Acknowledging receiver connectivity check")
		httputils.TextResponse(w, http.StatusOK, "")
		return
	}

	if !signature.Verify(r.Header, bodyBytes, h.cfg.Chrono.WebhookSecret) {
		h.logger.Error(&reqID, "Webhook signature verification failed")
		httputils.JSONError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	noteID := extractNoteID(payload)
	if noteID == "" {
		h.logger.Error(&reqID, "Webhook payload carries no note id")
		httputils.JSONError(w, http.StatusBadRequest, "No note ID in webhook payload")
		return
	}

	h.logger.Info(&reqID, "Received note-locked webhook: note_id=%s", noteID)

	outcome, err := h.processGuarded(r, noteID, reqID)
	if err != nil {
		h.logger.Error(&reqID, "Error processing note %s: %v", noteID, err)
		httputils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{Status: string(outcome.Status), S3Key: outcome.S3Key}
	if err := httputils.JSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.Error(&reqID, "Error sending response: %v", err)
	}
}

// processGuarded converts a panic anywhere in the pipeline into the same
// 500 an ordinary error produces, so a bad PDF or SDK bug never takes the
// process down mid-request.
func (h *Handler) processGuarded(r *http.Request, noteID string, reqID string) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while processing note %s: %v", noteID, rec)
		}
	}()

	return h.Process(r.Context(), noteID, reqID)
}

// Process runs the fetch/classify/archive pipeline for one note and reports
// the outcome explicitly; only genuine failures come back as errors.
func (h *Handler) Process(ctx context.Context, noteID string, reqID string) (Outcome, error) {
	note, err := h.chrono.FetchNote(ctx, noteID, reqID)
	if err != nil {
		return Outcome{}, err
	}

	if note.PDF == "" {
		h.logger.Info(&reqID, "Note %s has no PDF yet", noteID)
		return Outcome{Status: StatusNoPDF}, nil
	}

	pdfBytes, err := h.chrono.DownloadPDF(ctx, note.PDF, reqID)
	if err != nil {
		return Outcome{}, err
	}

	if !h.classifier.ContainsMarker(pdfBytes, h.cfg.Archive.ProviderMarker) {
		h.logger.Info(&reqID, "Provider marker not found on first page of note %s", noteID)
		return Outcome{Status: StatusProviderNotFound}, nil
	}

	key := h.archiver.Key(noteID)
	if err := h.archiver.Upload(ctx, key, pdfBytes, reqID); err != nil {
		return Outcome{}, err
	}

	return Outcome{Status: StatusUploaded, S3Key: key}, nil
}

// extractNoteID pulls the note id out of the payload, trying each known
// key in order. Numeric ids are rendered without an exponent or decimal
// point; empty strings are skipped like absent keys.
func extractNoteID(payload map[string]any) string {
	for _, key := range noteIDKeys {
		value, ok := payload[key]
		if !ok {
			continue
		}

		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case json.Number:
			if v.String() != "0" {
				return v.String()
			}
		}
	}

	return ""
}
