package mongo

import (
	"context"

	"github.com/tunesync/api/internal/instance"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Options struct {
	URI    string
	DB     string
	Direct bool
}

func New(ctx context.Context, opt Options) (instance.Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opt.URI).SetDirect(opt.Direct))
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	return &inst{
		client: client,
		db:     client.Database(opt.DB),
	}, nil
}

type inst struct {
	client *mongo.Client
	db     *mongo.Database
}

func (i *inst) Collection(name instance.CollectionName) *mongo.Collection {
	return i.db.Collection(string(name))
}

func (i *inst) Ping(ctx context.Context) error {
	return i.client.Ping(ctx, nil)
}
