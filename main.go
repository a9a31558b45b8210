package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"storemate/m/internal/api"
	"storemate/m/internal/cache"
	"storemate/m/internal/config"
	"storemate/m/internal/database"
	"storemate/m/internal/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)

	results := cache.New(cache.DefaultCapacity)
	handler := api.New(db, results, cfg.Secret)

	log.Printf("StoreMate server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
