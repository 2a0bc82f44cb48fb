package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/instance"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrUserNotFound is returned when no document matches the given id or token.
var ErrUserNotFound = errors.New("user not found")

const recentlyPlayedLimit = 10

type Options struct {
	Mongo instance.Mongo
}

func New(opt Options) instance.Users {
	return &inst{mongo: opt.Mongo}
}

type inst struct {
	mongo instance.Mongo
}

func (i *inst) col() *mongo.Collection {
	return i.mongo.Collection(instance.CollectionNameUsers)
}

func (i *inst) Get(ctx context.Context, userID string) (model.UserModel, error) {
	return i.one(ctx, bson.M{"user_id": userID})
}

func (i *inst) GetByToken(ctx context.Context, token string) (model.UserModel, error) {
	if token == "" {
		return model.UserModel{}, ErrUserNotFound
	}

	return i.one(ctx, bson.M{"access_token": token})
}

func (i *inst) one(ctx context.Context, filter bson.M) (model.UserModel, error) {
	user := model.UserModel{}

	err := i.col().FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user, ErrUserNotFound
		}

		return user, err
	}

	return user, nil
}

func (i *inst) Save(ctx context.Context, user model.UserModel) error {
	_, err := i.col().UpdateOne(ctx,
		bson.M{"user_id": user.UserID},
		bson.M{"$set": user},
		options.Update().SetUpsert(true),
	)

	return err
}

func (i *inst) Update(ctx context.Context, user model.UserModel) error {
	result, err := i.col().UpdateOne(ctx,
		bson.M{"user_id": user.UserID},
		bson.M{"$set": user},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (i *inst) PushRecentlyPlayed(ctx context.Context, userID string, track model.TrackModel) ([]model.TrackModel, error) {
	user, err := i.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	recents := mergeRecentlyPlayed(user.RecentlyPlayed, track)
	user.RecentlyPlayed = recents

	if err = i.Update(ctx, user); err != nil {
		return nil, err
	}

	return recents, nil
}

// mergeRecentlyPlayed moves track to the head of the history, dropping any
// earlier occurrence and capping the list.
func mergeRecentlyPlayed(history []model.TrackModel, track model.TrackModel) []model.TrackModel {
	recents := make([]model.TrackModel, 0, len(history)+1)
	recents = append(recents, track)

	for _, t := range history {
		if t.ID == track.ID {
			continue
		}

		recents = append(recents, t)
	}

	if len(recents) > recentlyPlayedLimit {
		recents = recents[:recentlyPlayedLimit]
	}

	return recents
}

// GenerateToken mints a new opaque account access token.
func GenerateToken() string {
	return uuid.NewString()
}
