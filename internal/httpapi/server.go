package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"roamgate/internal/auth"
	"roamgate/internal/cache"
	"roamgate/internal/oicp"
	"roamgate/internal/reconcile"
	"roamgate/internal/roaming"
	"roamgate/internal/store"
	"roamgate/internal/stream"
)

// Server is the inbound partner surface of the adapter.
type Server struct {
	logger      *zap.Logger
	tokens      *auth.TokenService
	keys        *auth.KeyStore
	model       *roaming.Model
	reconciler  *reconcile.Engine
	statusCache *cache.StatusCache
	cdrs        *store.CDRRepository
	hub         *stream.Hub

	dataCodec   oicp.EVSEDataCodec
	statusCodec oicp.EVSEStatusCodec
	cdrCodec    oicp.CDRCodec
}

// NewServer wires the handler dependencies.
func NewServer(logger *zap.Logger, tokens *auth.TokenService, keys *auth.KeyStore, model *roaming.Model, reconciler *reconcile.Engine, statusCache *cache.StatusCache, cdrs *store.CDRRepository, hub *stream.Hub) *Server {
	return &Server{
		logger:      logger,
		tokens:      tokens,
		keys:        keys,
		model:       model,
		reconciler:  reconciler,
		statusCache: statusCache,
		cdrs:        cdrs,
		hub:         hub,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/v1/token", s.IssueToken)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireToken(s.tokens, next) })
		r.Post("/api/v1/evsedata", s.ReceiveEVSEData)
		r.Post("/api/v1/evsestatus", s.ReceiveEVSEStatus)
		r.Post("/api/v1/authorize/start", s.AuthorizeStart)
		r.Post("/api/v1/authorize/stop", s.AuthorizeStop)
		r.Post("/api/v1/cdrs", s.ReceiveCDR)
		r.Get("/api/v1/operators", s.ListOperators)
	})

	if s.hub != nil {
		r.Get("/api/v1/stream", s.hub.HandleWS)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
