package instance

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

type CollectionName string

const (
	CollectionNameUsers     CollectionName = "users"
	CollectionNamePlaylists CollectionName = "playlists"
)

type Mongo interface {
	Collection(name CollectionName) *mongo.Collection
	Ping(ctx context.Context) error
}
