package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authgate"
)

const maxBodyBytes = 64 << 10

const (
	msgUnauthorized   = "unauthorized, please login"
	msgInvalidOTP     = "invalid or expired otp"
	msgInvalidBody    = "invalid request body"
	msgTooManyRequest = "too many requests, please try again later"
	msgInternal       = "internal server error"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// nullEnvelope always carries the data key, for answers whose data is
// legitimately null.
type nullEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) ok(w http.ResponseWriter, message string, data any) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, envelope{Message: message})
}

// writeError maps an Engine error to a status and a client-safe message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *authgate.RateLimitError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl)))
		s.fail(w, http.StatusTooManyRequests, msgTooManyRequest)
	case errors.Is(err, authgate.ErrValidation):
		msg, ok := authgate.ClientMessage(err)
		if !ok {
			msg = "invalid request"
		}
		s.fail(w, http.StatusBadRequest, msg)
	case errors.Is(err, authgate.ErrOTPInvalid):
		s.fail(w, http.StatusBadRequest, msgInvalidOTP)
	case errors.Is(err, authgate.ErrInvalidCredentials):
		s.fail(w, http.StatusUnauthorized, authgate.ErrInvalidCredentials.Error())
	case errors.Is(err, authgate.ErrUnauthorized):
		s.fail(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, authgate.ErrUserExists):
		s.fail(w, http.StatusUnprocessableEntity, "user already exists, use another email")
	case errors.Is(err, authgate.ErrPasswordSetFailed):
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		s.fail(w, http.StatusInternalServerError, authgate.ErrPasswordSetFailed.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		s.fail(w, http.StatusInternalServerError, msgInternal)
	}
}

func retryAfterSeconds(rl *authgate.RateLimitError) int {
	secs := int(math.Ceil(rl.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// decode reads a JSON body into dst. An empty body decodes to the zero
// value so field validation can answer with its own message.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	return errors.Is(err, authgate.ErrUnauthorized)
}
