package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/middleware"
)

const (
	sessionDataCookie = "authgate.session_data"
	headerAuthToken   = "set-auth-token"
)

type cookieJar struct {
	secure   bool
	lifetime time.Duration
}

func (j cookieJar) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// issueSession writes the session token to the cookie and the
// set-auth-token header, plus the session-data cookie when enabled.
func (s *Server) issueSession(w http.ResponseWriter, res *authgate.AuthResult) {
	maxAge := s.cookies.lifetime
	if res.Session != nil {
		maxAge = res.Session.Remaining(s.now())
	}
	http.SetCookie(w, s.cookies.cookie(middleware.SessionCookie, res.Token, maxAge))
	w.Header().Set(headerAuthToken, res.Token)
	s.writeSessionData(w, res.Token, &authgate.SessionView{Session: res.Session, User: res.User})
}

func (s *Server) writeSessionData(w http.ResponseWriter, token string, view *authgate.SessionView) {
	if s.sessionData == nil || view == nil || view.Session == nil || view.User == nil {
		return
	}
	signed, err := s.sessionData.Sign(token, jwt.SessionData{
		SessionID:     view.Session.ID,
		UserID:        view.User.ID,
		Email:         view.User.Email,
		Name:          view.User.Name,
		EmailVerified: view.User.EmailVerified,
		ExpiresAt:     view.Session.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("session data cookie not issued", "error", err)
		return
	}
	http.SetCookie(w, s.cookies.cookie(sessionDataCookie, signed, s.sessionData.TTL()))
}

// cachedSession answers from the session-data cookie when it is valid for
// token.
func (s *Server) cachedSession(r *http.Request, token string) (*sessionDTO, bool) {
	if s.sessionData == nil {
		return nil, false
	}
	c, err := r.Cookie(sessionDataCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	data, err := s.sessionData.Parse(c.Value, token)
	if err != nil {
		return nil, false
	}
	return &sessionDTO{
		Session: sessionInfo{
			ID:        data.SessionID,
			UserID:    data.UserID,
			ExpiresAt: data.ExpiresAt,
		},
		User: userDTO{
			ID:            data.UserID,
			Email:         data.Email,
			Name:          data.Name,
			EmailVerified: data.EmailVerified,
		},
	}, true
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, s.cookies.cookie(middleware.SessionCookie, "", 0))
	if s.sessionData != nil {
		http.SetCookie(w, s.cookies.cookie(sessionDataCookie, "", 0))
	}
}
