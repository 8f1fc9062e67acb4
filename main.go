package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"aquasplit/internal/audit"
	"aquasplit/internal/auth"
	billingapp "aquasplit/internal/billing/application"
	billing "aquasplit/internal/billing/domain"
	"aquasplit/internal/billing/infrastructure/memory"
	billingpostgres "aquasplit/internal/billing/infrastructure/postgres"
	"aquasplit/internal/billing/infrastructure/workbook"
	billinghttp "aquasplit/internal/billing/interfaces/http"
	"aquasplit/internal/config"
	"aquasplit/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	var (
		periods     billing.PeriodRepository
		trueups     billing.TrueUpRepository
		auditLogger audit.Logger
	)
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		metrics.Init(db, logger)
		periods = billingpostgres.NewPeriodRepository(db)
		trueups = billingpostgres.NewTrueUpRepository(db)
		auditLogger = audit.NewRepository(db)
		logger.Printf("history store: postgres")
	case cfg.WorkbookPath != "":
		store, err := workbook.NewStore(cfg.WorkbookPath)
		if err != nil {
			logger.Fatalf("workbook store error: %v", err)
		}
		metrics.Init(nil, logger)
		periods = store.PeriodRepository()
		trueups = store.TrueUpRepository()
		logger.Printf("history store: workbook %s", cfg.WorkbookPath)
	default:
		metrics.Init(nil, logger)
		periods = memory.NewPeriodRepository()
		trueups = memory.NewTrueUpRepository()
		logger.Printf("history store: in-memory (set DATABASE_URL or WORKBOOK_PATH to persist)")
	}

	splitService, err := billingapp.NewSplitService(periods, cfg.Thresholds, nil, nil)
	if err != nil {
		logger.Fatalf("split service error: %v", err)
	}
	trueupService, err := billingapp.NewTrueUpService(periods, trueups, nil, nil)
	if err != nil {
		logger.Fatalf("trueup service error: %v", err)
	}
	historyService, err := billingapp.NewHistoryService(periods, trueups, cfg.Thresholds)
	if err != nil {
		logger.Fatalf("history service error: %v", err)
	}

	splitHandler, err := billinghttp.NewSplitHandler(splitService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("split handler error: %v", err)
	}
	trueupHandler, err := billinghttp.NewTrueUpHandler(trueupService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("trueup handler error: %v", err)
	}
	historyHandler, err := billinghttp.NewHistoryHandler(historyService, logger)
	if err != nil {
		logger.Fatalf("history handler error: %v", err)
	}
	labels := billinghttp.PartyLabels{Party1: cfg.Party1, Party2: cfg.Party2}
	exportHandler, err := billinghttp.NewExportHandler(historyService, labels, auditLogger, logger)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/splits/calculate", splitHandler)
	mux.Handle("/api/v1/trueups/calculate", trueupHandler)
	mux.Handle("/api/v1/history/", historyHandler)
	mux.Handle("/api/v1/exports/", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := http.Handler(mux)
	if cfg.AuthEnabled() {
		loginHandler, err := auth.NewLoginHandler(cfg.Users, []byte(cfg.JWTSecret), cfg.TokenTTL)
		if err != nil {
			logger.Fatalf("login handler error: %v", err)
		}
		mux.Handle("/api/v1/auth/login", loginHandler)
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/api/v1/auth/login"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Printf("auth disabled: no users configured")
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(handler, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
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
