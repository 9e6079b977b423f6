package httputils

import (
	"bytes"
	"io"
	"net/http"

	"github.com/mtorres/chrono-archiver/internal/utils"
)

// LogRequestBody drains the request body, restores it on the request and
// returns the raw bytes. Signature verification needs the exact bytes that
// arrived on the wire, so this is the single read point for POST bodies.
func LogRequestBody(r *http.Request, logger *utils.Logger, reqID string) ([]byte, error) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if logger.RawBodyLog {
		logger.Debug(&reqID, "Raw request body: %s", string(bodyBytes))
	}

	return bodyBytes, nil
}
