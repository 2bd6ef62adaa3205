package mongodb

import (
	"context"
	"fmt"
	"time"

	"marketchat/internal/database"
	"marketchat/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messagesCollection = "messages"

// MessageRepository stores messages in a MongoDB collection.
type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(db *database.MongoDB) *MessageRepository {
	return &MessageRepository{coll: db.DB.Collection(messagesCollection)}
}

// EnsureIndexes creates the indexes the queries below rely on.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, senderID, receiverID, content string) (*models.Message, error) {
	now := time.Now().UTC().Truncate(time.Millisecond) // BSON dates have millisecond precision
	msg := &models.Message{
		ID:         models.NewMessageID(now),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
	}
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepository) ListBetween(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"sender_id": userA, "receiver_id": userB},
			{"sender_id": userB, "receiver_id": userA},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []*models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"sender_id": fromUserID, "receiver_id": toUserID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"receiver_id": userID, "is_read": false})
}
