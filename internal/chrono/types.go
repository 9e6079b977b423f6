package chrono

import "fmt"

// ClinicalNote is the slice of the DrChrono clinical note resource this
// service cares about. PDF is empty when the note has no rendered document
// yet.
type ClinicalNote struct {
	ID          int    `json:"id"`
	Patient     int    `json:"patient"`
	Doctor      int    `json:"doctor"`
	Appointment string `json:"appointment"`
	PDF         string `json:"pdf"`
	UpdatedAt   string `json:"updated_at"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}
