package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/websocket"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/auth"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/fanout"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

type Ingestor interface {
	Submit(ctx context.Context, deviceKey string, raw []byte) (domain.StoredSample, error)
}

type Querier interface {
	Recent(ctx context.Context) ([]domain.StoredSample, error)
	Range(ctx context.Context, fromRaw, toRaw string) ([]domain.StoredSample, error)
}

type Accounts interface {
	Register(ctx context.Context, email, password string) (domain.Account, error)
	Login(ctx context.Context, email, password string) (auth.Token, error)
}

type SessionVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type Subscriber interface {
	Subscribe(conn ports.Conn) (*fanout.Subscription, error)
}

// Deps are the application services the HTTP surface calls into.
type Deps struct {
	Ingest   Ingestor
	Query    Querier
	Accounts Accounts
	Sessions SessionVerifier
	Fanout   Subscriber
	Upgrader *websocket.Upgrader
	Obs      ports.Observability
}

type Config struct {
	MaxBodyBytes int64
}

// Server routes the REST API under /api/ and the push channel at /ws.
type Server struct {
	deps Deps
	cfg  Config
	mux  *http.ServeMux
}

func New(deps Deps, cfg Config) *Server {
	if deps.Obs == nil {
		deps.Obs = ports.NopObservability{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 10
	}
	s := &Server{deps: deps, cfg: cfg, mux: http.NewServeMux()}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/auth/register", s.handleRegister)
	api.HandleFunc("POST /api/auth/login", s.handleLogin)
	api.HandleFunc("POST /api/mediciones", s.handleIngest)
	api.HandleFunc("GET /api/mediciones", s.handleQuery)

	s.mux.Handle("/api/", s.accessLog(s.requireSession(api)))
	s.mux.HandleFunc("GET /ws", s.handlePush)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// requireSession lets allow-listed calls through and demands a valid bearer
// token for everything else under /api/.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.Exempt(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		id, err := s.deps.Sessions.Verify(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			s.deps.Obs.IncCounter(ports.MetricAuthFailures, 1)
			msg := msgInvalidToken
			if errors.Is(err, auth.ErrMissingToken) {
				msg = msgMissingToken
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Obs.LogDebug("http request",
			ports.Field{Key: "method", Value: r.Method},
			ports.Field{Key: "path", Value: r.URL.Path},
			ports.Field{Key: "status", Value: rec.status},
			ports.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
	})
}

// deviceKey reads the credential from the header, falling back to the
// apiKey query parameter for devices that cannot set headers.
func deviceKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("x-api-key")); k != "" {
		return k
	}
	return r.URL.Query().Get("apiKey")
}
