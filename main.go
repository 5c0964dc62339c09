package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	apihttp "gridmarket/internal/api/http"
	"gridmarket/internal/audit"
	"gridmarket/internal/auth"
	"gridmarket/internal/eventing"
	"gridmarket/internal/eventing/eventbus"
	eventingrepo "gridmarket/internal/eventing/infrastructure/postgres"
	eventinghttp "gridmarket/internal/eventing/interfaces/http"
	"gridmarket/internal/genesis"
	"gridmarket/internal/ledger"
	ledgermemory "gridmarket/internal/ledger/memory"
	ledgerpostgres "gridmarket/internal/ledger/postgres"
	marketapp "gridmarket/internal/market/application"
	marketevents "gridmarket/internal/market/application/events"
	markethttp "gridmarket/internal/market/interfaces/http"
	"gridmarket/internal/observability/metrics"
	registryapp "gridmarket/internal/registry/application"
	registryevents "gridmarket/internal/registry/application/events"
	registryhttp "gridmarket/internal/registry/interfaces/http"
	servicelogapp "gridmarket/internal/servicelog/application"
	servicelogevents "gridmarket/internal/servicelog/application/events"
	serviceloghttp "gridmarket/internal/servicelog/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	var (
		store          ledger.Store
		outboxStore    eventing.OutboxStore
		processedStore eventing.ProcessedStore
		auditLogger    audit.Logger
		db             *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		if err := ledgerpostgres.Migrate(context.Background(), db); err != nil {
			logger.Fatalf("db migrate error: %v", err)
		}
		pgStore, err := ledgerpostgres.NewStore(db)
		if err != nil {
			logger.Fatalf("ledger store error: %v", err)
		}
		store = pgStore
		outboxStore = eventingrepo.NewOutboxStore(db)
		processedStore = eventingrepo.NewProcessedStore(db)
		auditLogger = audit.NewRepository(db)
	} else {
		logger.Printf("DATABASE_URL not set, using in-memory ledger")
		memStore := ledgermemory.NewStore()
		store = memStore
		outboxStore = memStore
	}
	metrics.Init(db, logger)

	baseBus := eventbus.NewInMemoryBus()
	eventRegistry := eventing.NewRegistry()
	eventRegistry.Register(registryevents.StationRegistered{})
	eventRegistry.Register(registryevents.SellCapacityChanged{})
	eventRegistry.Register(registryevents.TargetReserveChanged{})
	eventRegistry.Register(registryevents.OwnerChanged{})
	eventRegistry.Register(registryevents.StateChanged{})
	eventRegistry.Register(registryevents.WhitelistChanged{})
	eventRegistry.Register(marketevents.SurchargeSet{})
	eventRegistry.Register(marketevents.CapacityPurchased{})
	eventRegistry.Register(servicelogevents.ServiceEntryAdded{})

	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, eventRegistry)

	if cfg.GenesisPath != "" || os.Getenv("GENESIS_ADMINISTRATOR") != "" {
		genesisCfg, err := genesis.Load(cfg.GenesisPath)
		if err != nil {
			logger.Fatalf("genesis config error: %v", err)
		}
		if err := genesis.Apply(context.Background(), store, genesisCfg); err != nil {
			logger.Fatalf("genesis apply error: %v", err)
		}
		logger.Printf("genesis applied: administrator=%s whitelist=%d accounts=%d",
			genesisCfg.Administrator, len(genesisCfg.Whitelist), len(genesisCfg.Accounts))
	}

	registryService, err := registryapp.NewService(store, systemClock{}, dispatcher)
	if err != nil {
		logger.Fatalf("registry service error: %v", err)
	}
	marketService, err := marketapp.NewService(store, systemClock{}, dispatcher)
	if err != nil {
		logger.Fatalf("market service error: %v", err)
	}
	servicelogService, err := servicelogapp.NewService(store, systemClock{}, dispatcher)
	if err != nil {
		logger.Fatalf("servicelog service error: %v", err)
	}

	broker := eventinghttp.NewSSEBroker()
	for _, sample := range []any{
		registryevents.StationRegistered{},
		registryevents.SellCapacityChanged{},
		registryevents.TargetReserveChanged{},
		registryevents.OwnerChanged{},
		registryevents.StateChanged{},
		registryevents.WhitelistChanged{},
		marketevents.SurchargeSet{},
		marketevents.CapacityPurchased{},
		servicelogevents.ServiceEntryAdded{},
	} {
		eventing.Subscribe(baseBus, eventbus.EventType(sample), "sse.stream", broker.Handle, processedStore)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[marketevents.CapacityPurchased](), "market.log", func(ctx context.Context, event any) error {
		evt, ok := event.(marketevents.CapacityPurchased)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		logger.Printf("capacity purchased: station=%d buyer=%s amount=%d price=%d surcharge=%d refund=%d",
			evt.StationID, evt.Buyer, evt.Amount, evt.Price, evt.Surcharge, evt.Refund)
		return nil
	}, processedStore)

	stationHandler, err := registryhttp.NewStationHandler(registryService, auditLogger)
	if err != nil {
		logger.Fatalf("station handler error: %v", err)
	}
	whitelistHandler, err := registryhttp.NewWhitelistHandler(registryService, auditLogger)
	if err != nil {
		logger.Fatalf("whitelist handler error: %v", err)
	}
	marketHandler, err := markethttp.NewMarketHandler(marketService, auditLogger)
	if err != nil {
		logger.Fatalf("market handler error: %v", err)
	}
	recordHandler, err := serviceloghttp.NewServiceRecordHandler(servicelogService, auditLogger)
	if err != nil {
		logger.Fatalf("service record handler error: %v", err)
	}
	exportHandler, err := apihttp.NewExportHandler(registryService, servicelogService)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	go func() {
		ticker := time.NewTicker(cfg.DispatchInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := dispatcher.Dispatch(context.Background(), 50); err != nil {
				logger.Printf("outbox dispatch error: %v", err)
			}
		}
	}()

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/stations", stationHandler)
	mux.Handle("/api/v1/stations/", stationHandler)
	mux.Handle("/api/v1/whitelist", whitelistHandler)
	mux.Handle("/api/v1/whitelist/", whitelistHandler)
	mux.Handle("/api/v1/market/", marketHandler)
	mux.Handle("/api/v1/service-records", recordHandler)
	mux.Handle("/api/v1/service-records/", recordHandler)
	mux.Handle("/api/v1/exports/", exportHandler)
	mux.Handle("/api/v1/events/stream", eventinghttp.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := loggingMiddleware(eventinghttp.RequestCorrelation(authMiddleware.Wrap(mux)), logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	JWTSecret        string
	GenesisPath      string
	DispatchInterval time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		GenesisPath:      getenvDefault("GENESIS_CONFIG", ""),
		DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
