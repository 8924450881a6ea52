package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/dhankosh/backend/internal/config"
	"github.com/dhankosh/backend/internal/http"
	"github.com/dhankosh/backend/internal/logger"
	"github.com/dhankosh/backend/internal/pricing"
	"github.com/dhankosh/backend/internal/repository"
	"github.com/dhankosh/backend/internal/repository/memory"
	"github.com/dhankosh/backend/internal/repository/postgres"
	"github.com/dhankosh/backend/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Environment)
	gin.SetMode(cfg.GinMode())

	var store repository.Store
	if cfg.UseInMemoryStore {
		log.Warn("DATABASE_URL not set, using in-memory store. Data will reset on restart.")
		store = memory.New()
	} else {
		db, err := sql.Open("postgres", cfg.DBURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to postgres")
		}
		if err := db.Ping(); err != nil {
			log.WithError(err).Fatal("postgres ping failed")
		}
		store = postgres.New(db)
		defer db.Close()
		log.Info("connected to postgres")
	}

	priceSvc := pricing.NewCacheService(store, pricing.NewRandomFetcher(), log)
	valuationSvc := service.NewValuationService(store, priceSvc, log)
	snapshotSvc := service.NewSnapshotService(store, priceSvc, log)
	taxSvc := service.NewTaxService(store, log)
	goalSvc := service.NewGoalService(store, valuationSvc, log)

	router := http.Router(http.Services{
		Valuation: valuationSvc,
		Snapshots: snapshotSvc,
		Tax:       taxSvc,
		Goals:     goalSvc,
	}, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Infof("Dhankosh valuation service listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
