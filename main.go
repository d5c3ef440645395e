package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/fliegerkasse/backend/src/config"
	"github.com/username/fliegerkasse/backend/src/database"
	"github.com/username/fliegerkasse/backend/src/handlers"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/processors"
	"github.com/username/fliegerkasse/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
			"http://localhost:5173": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Fliegerkasse backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	reportCache := cache.New(config.Cfg.ReportCacheExpiry, config.Cfg.ReportCacheCleanup)

	transactionProcessor := processors.NewTransactionProcessor()

	reportService := services.NewReportService(reportCache)
	importService := services.NewImportService(transactionProcessor, reportService)
	allocationService := services.NewAllocationService(reportService)

	importHandler := handlers.NewImportHandler(importService)
	txHandler := handlers.NewTransactionHandler(importService, allocationService, reportService)
	reportHandler := handlers.NewReportHandler(reportService)
	fleetHandler := handlers.NewFleetHandler(reportService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Fliegerkasse Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/import", importHandler.HandleImport)
		r.Post("/import/check-duplicate", importHandler.HandleCheckDuplicate)

		r.Get("/transactions", txHandler.HandleGetTransactions)
		r.Post("/transactions/manual", txHandler.HandleAddManualTransaction)
		r.Put("/transactions/{id}/allocations", txHandler.HandleSetAllocations)
		r.Put("/transactions/{id}/general-cost", txHandler.HandleSetGeneralCost)
		r.Post("/transactions/delete", txHandler.HandleDeleteTransactions)

		r.Get("/reports/yearstats", reportHandler.HandleGetYearStats)
		r.Get("/reports/details", reportHandler.HandleGetDetails)
		r.Get("/reports/comparison", reportHandler.HandleCompareYears)

		r.Get("/aircraft", fleetHandler.HandleGetAircraft)
		r.Post("/aircraft", fleetHandler.HandleCreateAircraft)
		r.Get("/general-costs", fleetHandler.HandleGetGeneralCosts)
		r.Post("/general-costs", fleetHandler.HandleCreateGeneralCost)
		r.Get("/membership-fee-types", fleetHandler.HandleGetMembershipFeeTypes)
		r.Post("/membership-fee-types", fleetHandler.HandleCreateMembershipFeeType)
		r.Get("/membership-fee-stats", fleetHandler.HandleGetMembershipFeeStats)
		r.Post("/membership-fee-stats", fleetHandler.HandleCreateMembershipFeeStat)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
