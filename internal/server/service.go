package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/llxisdsh/synctable"
	"github.com/llxisdsh/synctable/internal/config"
	"github.com/llxisdsh/synctable/internal/metrics"
	"github.com/llxisdsh/synctable/internal/server/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Service represents the HTTP front of a single string table
type Service struct {
	server *http.Server

	Config *config.Config
	Table  *synctable.Table[string, string]

	writer   *schema.Writer
	registry *prometheus.Registry
}

// Handler builds the router serving the table API. Startup calls it; tests
// use it directly.
func (service *Service) Handler() (http.Handler, error) {
	// Create the HTTP schema writer
	service.writer = &schema.Writer{
		InternalErrorHook: func(err error) {
			log.Error().Err(err).Msg("the table API experienced an unexpected error")
		},
	}

	// Expose the table statistics
	service.registry = prometheus.NewRegistry()
	if err := service.registry.Register(metrics.NewCollector("default", service.Table.Stats)); err != nil {
		return nil, err
	}

	// Create the HTTP router
	router := chi.NewRouter()
	router.Use(middleware.RedirectSlashes)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://*", "https://*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
	}))
	router.NotFound(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteErrors(writer, http.StatusNotFound, schema.ErrNotFound)
	})
	router.MethodNotAllowed(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteErrors(writer, http.StatusMethodNotAllowed, schema.ErrMethodNotAllowed)
	})

	// Register the API endpoint handlers
	service.registerEndpoints(router)
	return router, nil
}

// Startup starts up the table API
func (service *Service) Startup() error {
	handler, err := service.Handler()
	if err != nil {
		return err
	}

	// Start up the server
	server := &http.Server{
		Addr:    service.Config.ListenAddress,
		Handler: handler,
	}
	service.server = server
	return server.ListenAndServe()
}

// Shutdown shuts down the table API
func (service *Service) Shutdown() {
	if service.server != nil {
		service.server.Close()
		service.server = nil
	}
}

func (service *Service) registerEndpoints(router chi.Router) {
	router.Route("/v1/entries", func(router chi.Router) {
		router.Get("/", service.EndpointListEntries)
		router.Post("/", service.EndpointCreateEntry)
		router.Get("/{key}", service.EndpointGetEntry)
		router.Put("/{key}", service.EndpointPutEntry)
		router.Delete("/{key}", service.EndpointDeleteEntry)
		router.Post("/{key}/merge", service.EndpointMergeEntry)
	})
	router.Get("/v1/stats", service.EndpointGetStats)
	router.Get("/v1/snapshot", service.EndpointGetSnapshot)
	router.Put("/v1/snapshot", service.EndpointPutSnapshot)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(service.registry, promhttp.HandlerOpts{}))
}
