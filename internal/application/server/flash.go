package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const flashCookieName = "flash"

// Flash message kinds, templates style them apart
const (
	flashSuccess = "success"
	flashError   = "error"
)

// Flash is a one shot message shown on the next rendered page
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// setFlash stores messages in a signed cookie, the client carries them
// across the redirect after a form post
func (h *Handler) setFlash(w http.ResponseWriter, kind, message string) {
	value, err := encodeFlashes([]Flash{{Kind: kind, Message: message}}, h.signingKey)
	if err != nil {
		h.logger.Error("Failure encoding flash cookie: ", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

// popFlashes returns pending messages and deletes the cookie. Tampered or
// unreadable cookies are discarded silently, their content is untrusted.
func (h *Handler) popFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
	flashes, err := decodeFlashes(cookie.Value, h.signingKey)
	if err != nil {
		h.logger.Debug("Discarding flash cookie: ", err)
		return nil
	}
	return flashes
}

func encodeFlashes(flashes []Flash, key []byte) (string, error) {
	payload, err := json.Marshal(flashes)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func decodeFlashes(value string, key []byte) ([]Flash, error) {
	payloadPart, macPart, found := strings.Cut(value, ".")
	if !found {
		return nil, errors.New("flash cookie without signature")
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, err
	}
	sum, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), sum) {
		return nil, errors.New("flash cookie signature mismatch")
	}
	var flashes []Flash
	if err := json.Unmarshal(payload, &flashes); err != nil {
		return nil, err
	}
	return flashes, nil
}
