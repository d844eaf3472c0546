package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/auth"
	"github.com/strefethen/heos-hub-go/internal/browse"
	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/db"
	"github.com/strefethen/heos-hub-go/internal/discovery"
	"github.com/strefethen/heos-hub-go/internal/eventfeed"
	"github.com/strefethen/heos-hub-go/internal/groups"
	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/history"
	"github.com/strefethen/heos-hub-go/internal/openapi"
	"github.com/strefethen/heos-hub-go/internal/players"
	"github.com/strefethen/heos-hub-go/internal/routines"
	"github.com/strefethen/heos-hub-go/internal/settings"
	"github.com/strefethen/heos-hub-go/internal/system"
	"github.com/strefethen/heos-hub-go/internal/templates"
)

// Options controls server wiring.
type Options struct {
	// DisableDiscovery skips all network scans; used by tests.
	DisableDiscovery bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestLoggerMiddleware(nil))
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router)
	openapi.RegisterRoutes(router)

	pairingStore := auth.NewPairingStore(5 * time.Minute)
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	pairingStore.StartCleanup(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg)

	historyService := history.NewService(cfg, dbPair, nil)
	history.RegisterRoutes(router, historyService)
	historyService.StartPruneJob()
	recordStartup(historyService, cfg)

	settingsService := settings.NewService(dbPair, nil)
	settings.RegisterRoutes(router, settingsService)

	discoveryService := discovery.NewService(cfg, historyService, nil)
	if options.DisableDiscovery {
		discoveryService.SetTestMode(true)
	}
	discovery.RegisterRoutes(router, discoveryService)

	// Resolve the HEOS endpoint and credentials before building the client;
	// the client itself never reads configuration storage.
	endpoint, username, password := resolveConnection(cfg, settingsService, discoveryService)

	heosClient := heos.NewClient(heos.Config{
		Endpoint:          endpoint,
		Username:          username,
		Password:          password,
		CommandTimeout:    time.Duration(cfg.HeosTimeoutMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.HeosHeartbeatSec) * time.Second,
		ReconnectMaxDelay: time.Duration(cfg.HeosReconnectMaxDelaySec) * time.Second,
	}, nil)

	if endpoint != "" {
		// First connect happens in the background; the reconnect loop keeps
		// trying until shutdown, so a device that is off right now is fine.
		go func() {
			connectCtx, cancel := context.WithTimeout(shutdownCtx, 30*time.Second)
			defer cancel()
			if err := heosClient.Connect(connectCtx); err != nil {
				log.Printf("HEOS connect: %v", err)
			}
		}()
	} else {
		log.Print("No HEOS device configured; set one via /v1/settings/connection or run a discovery scan")
	}

	// Recorder persists session/account/registry transitions into history.
	recorder := history.NewRecorder(historyService, heosClient, nil)
	recorder.Start()

	playerService := players.NewService(heosClient, historyService, nil)
	players.RegisterRoutes(router, playerService)

	groupService := groups.NewService(heosClient, historyService, nil)
	groups.RegisterRoutes(router, groupService)

	browseService := browse.NewService(heosClient, historyService, nil)
	browse.RegisterRoutes(router, browseService)

	routinesRepo := routines.NewRepository(dbPair)
	routineRunner := routines.NewRunner(nil, routinesRepo, heosClient, historyService)
	routineService := routines.NewService(routinesRepo, routineRunner, historyService, nil)
	routines.RegisterRoutes(router, routineService)
	templatesService := templates.NewService()
	templates.RegisterRoutes(router, templatesService)
	if err := routineRunner.Start(); err != nil {
		log.Printf("Routine runner start: %v", err)
	}

	// System service reports across the session, DB, history and scheduler.
	systemService := system.NewService(cfg, dbPair, nil, heosClient, settingsService, historyService, routineRunner)
	system.RegisterRoutes(router, systemService)

	feed := eventfeed.NewFeed(heosClient, nil)
	feed.Start()
	eventfeed.RegisterRoutes(router, feed)

	if !options.DisableDiscovery {
		discoveryService.StartPeriodicScan()
	}

	shutdown := func(ctx context.Context) error {
		shutdownCancel()
		routineRunner.Stop()
		feed.Stop()
		recorder.Stop()
		discoveryService.StopPeriodicScan()
		historyService.StopPruneJob()
		heosClient.Shutdown()
		return dbPair.Close()
	}

	return router, shutdown, nil
}

// resolveConnection picks the device endpoint and account credentials, in
// precedence order: environment, stored settings, discovery. Any of the
// results may be empty.
func resolveConnection(cfg config.Config, settingsService *settings.Service, discoveryService *discovery.Service) (endpoint, username, password string) {
	stored, err := settingsService.GetConnectionSettings()
	if err != nil {
		log.Printf("Failed to load stored connection settings: %v", err)
		stored = &settings.ConnectionSettings{DevicePort: heos.DefaultPort}
	}

	username = cfg.HeosUsername
	password = cfg.HeosPassword
	if username == "" && stored.HasAccount() {
		username = stored.AccountUsername
		password = stored.AccountPassword
	}

	switch {
	case cfg.HeosHost != "":
		endpoint = net.JoinHostPort(cfg.HeosHost, strconv.Itoa(cfg.HeosPort))
	case stored.DeviceHost != "":
		endpoint = net.JoinHostPort(stored.DeviceHost, strconv.Itoa(stored.DevicePort))
	default:
		devices, err := discoveryService.Devices()
		if err != nil {
			log.Printf("Endpoint discovery failed: %v", err)
			return
		}
		if len(devices) > 0 {
			endpoint = net.JoinHostPort(devices[0].IP, strconv.Itoa(cfg.HeosPort))
			log.Printf("Using discovered HEOS device at %s", endpoint)
		}
	}
	return
}

func recordStartup(historyService *history.Service, cfg config.Config) {
	input := history.WriteEventInput{
		Type:    string(history.EventSystemStartup),
		Message: "Hub started",
		Payload: map[string]any{
			"version": system.Version,
			"env":     cfg.Env,
		},
	}
	if _, err := historyService.RecordEvent(input); err != nil {
		log.Printf("Failed to record startup event: %v", err)
	}
}

func registerHealthRoutes(router chi.Router) {
	static := func(body map[string]any) api.Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			return api.WriteJSON(w, http.StatusOK, body)
		}
	}

	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "heos-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	router.Method(http.MethodGet, "/v1/health/live", static(map[string]any{"status": "ok"}))
	router.Method(http.MethodGet, "/v1/health/ready", static(map[string]any{"status": "ready"}))
}
