package db

import (
	"context"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo returns nil, nil unless the mongo document store is selected.
func ConnectMongo(cfg config.Config) (*mongo.Database, error) {
	if cfg.DocumentStore != "mongo" || cfg.MongoURI == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client.Database(cfg.MongoDatabase), nil
}
