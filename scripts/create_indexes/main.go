// create_indexes builds the MongoDB indexes the notification
// store and the audience directory rely on. Run it once per environment
// before switching STORE_DRIVER to mongo.
package main

import (
	"context"
	"time"

	"edu-notify/internal/config"
	"edu-notify/internal/database"
	"edu-notify/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{
		ServiceName: "edu-notify-indexes",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})

	db, err := database.NewMongoDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.CreateIndexes(ctx); err != nil {
		log.WithError(err).Fatal("Failed to create indexes")
	}

	log.WithField("database", cfg.DatabaseName).Info("Indexes created")
}
