// Package httpapi exposes the coordinator and pagewatch services over a
// local HTTP endpoint. The /v1/message route carries the same action-tagged
// envelopes the extension surfaces exchanged; the /v1/page routes are the
// page-context's challenge wiring.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/services/coordinator"
	"github.com/focusgate/focusgate/internal/guard/services/pagewatch"
)

// Coordinator is the message surface of the background hub.
type Coordinator interface {
	DomainsUpdated(ctx context.Context, incoming []domain.Rule) error
	AddDomain(ctx context.Context, raw string) (domain.Rule, error)
	RemoveDomain(ctx context.Context, name string) error
	UpdateDomain(ctx context.Context, rule domain.Rule) error
	Rules(ctx context.Context) []domain.Rule
	SettingsUpdated(ctx context.Context, settings domain.Settings) error
	Settings(ctx context.Context) (domain.Settings, error)
	ChallengeCompleted(ctx context.Context, host string) error
	Statistics(ctx context.Context) (domain.Statistics, error)
	StatisticsOverview(ctx context.Context) (coordinator.Overview, error)
	ResetStatistics(ctx context.Context) error
}

// Server is the HTTP transport for the popup and page surfaces.
type Server struct {
	coord   Coordinator
	watcher *pagewatch.Watcher
	logger  log.Logger
	http    *http.Server
}

// New constructs the Server listening on addr.
func New(addr string, coord Coordinator, watcher *pagewatch.Watcher, logger log.Logger) *Server {
	s := &Server{coord: coord, watcher: watcher, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/v1/message", s.handleMessage).Methods(http.MethodPost)
	router.HandleFunc("/v1/state", s.handleState).Methods(http.MethodGet)
	router.HandleFunc("/v1/statistics/overview", s.handleStatsOverview).Methods(http.MethodGet)
	router.HandleFunc("/v1/domains", s.handleAddDomain).Methods(http.MethodPost)
	router.HandleFunc("/v1/domains/{domain}", s.handleRemoveDomain).Methods(http.MethodDelete)
	router.HandleFunc("/v1/domains/{domain}", s.handleUpdateDomain).Methods(http.MethodPut)
	router.HandleFunc("/v1/page/navigate", s.handleNavigate).Methods(http.MethodPost)
	router.HandleFunc("/v1/page/state", s.handlePageState).Methods(http.MethodGet)
	router.HandleFunc("/v1/page/answer", s.handleAnswer).Methods(http.MethodPost)
	router.HandleFunc("/v1/page/skip", s.handleSkip).Methods(http.MethodPost)
	router.HandleFunc("/v1/page/widget", s.handleWidget).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving and blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.logger.Info(map[string]any{"addr": s.http.Addr}, "HTTP endpoint listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the composed handler, for tests using httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
