package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"feedprobe/internal/auth"
	"feedprobe/internal/config"
	"feedprobe/internal/db"
	"feedprobe/internal/security"
)

// requestOverhead is the multipart framing allowed on top of the package size
const requestOverhead = 1 << 20

// Server holds dependencies for API handlers
type Server struct {
	Store     db.Store
	Config    config.Config
	Keys      *auth.KeyManager
	Validator *security.PackageValidator
	Log       *zap.Logger
	Registry  *RouteRegistry
	// Now stamps uploads; VisibleAt is Now plus the propagation delay
	Now func() time.Time

	metrics *metrics
}

// NewServer creates a server over store
func NewServer(store db.Store, cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	secCfg := security.DefaultSecurityConfig()
	if cfg.MaxPackageSize > 0 {
		secCfg.MaxPackageSize = cfg.MaxPackageSize
	}

	return &Server{
		Store:     store,
		Config:    cfg,
		Keys:      auth.NewKeyManager(cfg.JWTSecret),
		Validator: security.NewPackageValidator(secCfg),
		Log:       log,
		Now:       time.Now,
		metrics:   newMetrics(),
	}
}

// RegisterRoutes sets up all routes and middleware on r
func (s *Server) RegisterRoutes(r *mux.Router) {
	s.Registry = s.SetupRoutes(r)

	// Apply middleware in order (outermost to innermost)
	r.Use(s.panicRecoveryMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.requestSizeLimitMiddleware(s.Validator.MaxPackageSize() + requestOverhead))
	r.Use(s.rateLimitMiddleware(s.Registry))
	r.Use(s.apiKeyMiddleware(s.Registry))
}

// Handler returns a router serving the feed
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return r
}
