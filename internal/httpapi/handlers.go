package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

type emailPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

type otpRequest struct {
	Email    string `json:"email"`
	Type     string `json:"type"`
	OTP      string `json:"otp"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleInitPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	token := middleware.TokenFromContext(r.Context())
	if _, ok := middleware.SessionFromContext(r.Context()); !ok {
		token = ""
	}
	if err := s.engine.SetPassword(r.Context(), token, body.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, "password set success", nil)
}

func (s *Server) handleSignUpEmail(w http.ResponseWriter, r *http.Request) {
	var body emailPasswordRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.engine.SignUpEmail(r.Context(), authgate.SignUpInput{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
		Image:    body.Image,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueSession(w, res)
	s.ok(w, "signed up", toAuthDTO(res))
}

func (s *Server) handleSignInEmail(w http.ResponseWriter, r *http.Request) {
	var body emailPasswordRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.engine.SignInEmail(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueSession(w, res)
	s.ok(w, "signed in", toAuthDTO(res))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	if err := s.engine.SignOut(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSession(w)
	s.ok(w, "signed out", nil)
}

// handleSignOutAll revokes every session of the caller, this one included.
func (s *Server) handleSignOutAll(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	if err := s.engine.SignOutAll(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSession(w)
	s.ok(w, "sessions revoked", nil)
}

// handleGetSession answers 200 with null data when there is no session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())

	if token != "" {
		if cached, ok := s.cachedSession(r, token); ok {
			if err := s.engine.CheckRateLimit(r.Context(), authgate.RouteGetSession); err != nil {
				s.writeError(w, r, err)
				return
			}
			s.ok(w, "session", cached)
			return
		}
	}

	view, err := s.engine.GetSession(r.Context(), token)
	if err != nil {
		if isUnauthorized(err) {
			s.writeJSON(w, http.StatusOK, nullEnvelope{Success: true, Message: "no active session"})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeSessionData(w, token, view)
	s.ok(w, "session", toSessionDTO(view))
}

func (s *Server) handleSendVerificationOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := s.engine.SendVerificationOTP(r.Context(), body.Email, body.Type); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, "verification code sent", nil)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.engine.VerifyEmailOTP(r.Context(), body.Email, body.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := struct {
		User  userDTO `json:"user"`
		Token string  `json:"token,omitempty"`
	}{User: toUserDTO(res.User)}
	if res.Auth != nil {
		s.issueSession(w, res.Auth)
		data.Token = res.Auth.Token
	}
	s.ok(w, "email verified", data)
}

func (s *Server) handleSignInEmailOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.engine.SignInEmailOTP(r.Context(), body.Email, body.OTP, body.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueSession(w, res)
	s.ok(w, "signed in", toAuthDTO(res))
}

func (s *Server) handleForgetPassword(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := s.engine.ForgetPasswordEmailOTP(r.Context(), body.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, "password reset code sent", nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := s.engine.ResetPasswordEmailOTP(r.Context(), body.Email, body.OTP, body.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, "password reset", nil)
}
