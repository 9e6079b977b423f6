// Package signature implements the HMAC scheme DrChrono uses both for the
// GET verification handshake and for signing webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Header carries the hex HMAC-SHA256 of the raw POST body.
const Header = "X-Drchrono-Signature"

// Digest returns the lowercase hex HMAC-SHA256 of msg under secret. The
// handshake response echoes exactly this value as secret_token.
func Digest(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header against the digest of the raw body.
// A missing header or an unconfigured secret fails closed. The comparison
// is constant-time.
func Verify(headers http.Header, body []byte, secret string) bool {
	supplied := headers.Get(Header)
	if supplied == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Digest(secret, body)), []byte(supplied))
}
