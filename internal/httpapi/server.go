package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/audit"
	"github.com/rickgao/parking-sync/internal/connection"
	"github.com/rickgao/parking-sync/internal/version"
	"github.com/rickgao/parking-sync/internal/zonecache"
)

// maxAuditLimit caps the limit query parameter on /audit.
const maxAuditLimit = audit.MaxEntries

// Backend is the part of the sync service the HTTP surface reads from.
type Backend interface {
	Status() string
	ConnectionStats() connection.Stats
	IsDataStale() bool
	ForceReconnect()
	Cache() *zonecache.Cache
	Audit() *audit.Ring
}

// Server serves the operator endpoints.
type Server struct {
	logger  *zap.Logger
	backend Backend
}

// NewServer creates a server over backend.
func NewServer(logger *zap.Logger, backend Backend) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{logger: logger, backend: backend}
}

// Register mounts the endpoints on router.
func (s *Server) Register(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/zones", s.handleZones).Methods(http.MethodGet)
	router.HandleFunc("/zones/{id}", s.handleZone).Methods(http.MethodGet)
	router.HandleFunc("/gates/{id}/zones", s.handleGateZones).Methods(http.MethodGet)
	router.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	router.HandleFunc("/reconnect", s.handleReconnect).Methods(http.MethodPost)
}

// Handler returns a router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	s.Register(router)
	return router
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

// handleHealth reports healthy while the feed is connected, degraded while
// it is recovering or the cache is stale, and unhealthy once reconnects
// are exhausted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.backend.ConnectionStats()
	cache := s.backend.Cache()
	stale := s.backend.IsDataStale()

	health := healthResponse{
		Status: "healthy",
		Components: map[string]any{
			"feed": s.backend.Status(),
			"cache": map[string]any{
				"zones":   len(cache.Zones()),
				"stale":   stale,
				"offline": cache.IsOfflineMode(),
			},
		},
	}

	switch {
	case stats.Exhausted:
		health.Status = "unhealthy"
	case !stats.Connected || stale:
		health.Status = "degraded"
	}

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, health)
}

type statusResponse struct {
	Status               string       `json:"status"`
	State                string       `json:"state"`
	Connected            bool         `json:"connected"`
	ReconnectAttempts    int          `json:"reconnectAttempts"`
	MaxReconnectAttempts int          `json:"maxReconnectAttempts"`
	PendingMessages      int          `json:"pendingMessages"`
	Subscriptions        []string     `json:"subscriptions"`
	TotalErrors          int64        `json:"totalErrors"`
	LastConnected        *time.Time   `json:"lastConnected,omitempty"`
	LastDisconnected     *time.Time   `json:"lastDisconnected,omitempty"`
	LastUpdateTime       *time.Time   `json:"lastUpdateTime,omitempty"`
	DataStale            bool         `json:"dataStale"`
	OfflineMode          bool         `json:"offlineMode"`
	AuditEntries         int          `json:"auditEntries"`
	Version              version.Info `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.backend.ConnectionStats()
	cache := s.backend.Cache()

	subs := stats.Subscriptions
	if subs == nil {
		subs = []string{}
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:               s.backend.Status(),
		State:                stats.State.String(),
		Connected:            stats.Connected,
		ReconnectAttempts:    stats.ReconnectAttempts,
		MaxReconnectAttempts: stats.MaxReconnectAttempts,
		PendingMessages:      stats.PendingMessages,
		Subscriptions:        subs,
		TotalErrors:          stats.TotalErrors,
		LastConnected:        optionalTime(stats.LastConnected),
		LastDisconnected:     optionalTime(stats.LastDisconnected),
		LastUpdateTime:       optionalTime(cache.LastUpdateTime()),
		DataStale:            s.backend.IsDataStale(),
		OfflineMode:          cache.IsOfflineMode(),
		AuditEntries:         s.backend.Audit().Len(),
		Version:              version.Get(),
	})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Cache().Zones())
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entry, ok := s.backend.Cache().GetCachedZoneState(id)
	if ok {
		s.writeJSON(w, http.StatusOK, entry)
		return
	}
	zone, ok := s.backend.Cache().Zone(id)
	if !ok {
		http.Error(w, "zone not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, zone)
}

func (s *Server) handleGateZones(w http.ResponseWriter, r *http.Request) {
	zones, ok := s.backend.Cache().ZonesForGate(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "gate not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.backend.Audit().Query(filter))
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("manual reconnect requested", zap.String("remote", r.RemoteAddr))
	s.backend.ForceReconnect()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:   q.Get("action"),
		TargetID: q.Get("target"),
		AdminID:  q.Get("admin"),
		Text:     q.Get("q"),
		SortBy:   q.Get("sort"),
	}

	switch f.SortBy {
	case "", audit.SortByTimestamp, audit.SortByAction, audit.SortByAdmin:
	default:
		return f, badRequest("invalid sort field")
	}

	switch q.Get("order") {
	case "", "desc":
	case "asc":
		f.Asc = true
	default:
		return f, badRequest("invalid order")
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, badRequest("invalid limit")
		}
		f.Limit = min(n, maxAuditLimit)
	}
	return f, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
