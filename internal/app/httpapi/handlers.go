package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/websocket"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/auth"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/fanout"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/ingest"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/query"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return raw, true
}

func (s *Server) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return credentials{}, false
	}
	var c credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingCredentials)
		return credentials{}, false
	}
	return c, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	c, ok := s.readCredentials(w, r)
	if !ok {
		return
	}

	_, err := s.deps.Accounts.Register(r.Context(), c.Email, c.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"message": msgUserCreated})
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, msgDuplicateEmail)
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, msgMissingCredentials)
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	c, ok := s.readCredentials(w, r)
	if !ok {
		return
	}

	tok, err := s.deps.Accounts.Login(r.Context(), c.Email, c.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"token": tok.Value})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := deviceKey(r)
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	_, err := s.deps.Ingest.Submit(r.Context(), key, raw)
	var vErr *ingest.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, ingest.ErrUnauthorized):
		writeError(w, http.StatusForbidden, msgInvalidAPIKey)
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, ingest.ErrStorageFailure):
		writeError(w, http.StatusInternalServerError, msgStorageError)
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		out []domain.StoredSample
		err error
	)
	if q.Has("from") || q.Has("to") {
		out, err = s.deps.Query.Range(r.Context(), q.Get("from"), q.Get("to"))
	} else {
		out, err = s.deps.Query.Recent(r.Context())
	}

	switch {
	case err == nil:
		if out == nil {
			out = []domain.StoredSample{}
		}
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, query.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, msgInvalidDates)
	default:
		s.internalError(w, r, err)
	}
}

// handlePush upgrades to a WebSocket and keeps the subscription until the
// viewer disconnects.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	conn, err := s.deps.Upgrader.Upgrade(w, r)
	if err != nil {
		s.deps.Obs.LogDebug("websocket upgrade failed", ports.Field{Key: "error", Value: err.Error()})
		return
	}

	sub, err := s.deps.Fanout.Subscribe(conn)
	if err != nil {
		reason := "server shutting down"
		if errors.Is(err, fanout.ErrTooManySubscribers) {
			reason = "too many subscribers"
		}
		_ = conn.CloseWithReason(websocket.CloseTryAgainLater, reason)
		return
	}

	conn.ReadLoop()
	_ = sub.Close()
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.deps.Obs.LogError("request failed", err,
		ports.Field{Key: "method", Value: r.Method},
		ports.Field{Key: "path", Value: r.URL.Path})
	writeError(w, http.StatusInternalServerError, msgServerError)
}
