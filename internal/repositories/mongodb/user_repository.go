package mongodb

import (
	"context"
	"errors"
	"time"

	"marketchat/internal/database"
	"marketchat/internal/models"
	"marketchat/internal/services"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *database.MongoDB) *UserRepository {
	return &UserRepository{coll: db.DB.Collection(usersCollection)}
}

func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{
			"$set": bson.M{
				"name":       user.Name,
				"email":      user.Email,
				"phone":      user.Phone,
				"updated_at": user.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": user.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
