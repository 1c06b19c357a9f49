package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"certpipe/pkg/metrics"
	"certpipe/pkg/models"
)

// RawMessage is the archived form of an accepted chat message. The archive
// keeps every message that passed filtering, whether or not extraction
// produced listings, so reprocessing stays possible.
type RawMessage struct {
	MessageID   string    `bson:"message_id"`
	GroupID     string    `bson:"group_id"`
	SenderID    string    `bson:"sender_id"`
	ContentKind string    `bson:"content_kind"`
	Content     string    `bson:"content"`
	MemberCount int       `bson:"member_count"`
	ReceivedAt  time.Time `bson:"received_at"`
	ArchivedAt  time.Time `bson:"archived_at"`
}

type Repository interface {
	Insert(ctx context.Context, msg models.ChatMessage) error
	CountByGroup(ctx context.Context, groupID string) (int64, error)
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection("raw_messages"),
	}
}

func (r *MongoDBRepository) Insert(ctx context.Context, msg models.ChatMessage) error {
	doc := RawMessage{
		MessageID:   msg.MessageID,
		GroupID:     msg.SourceID,
		SenderID:    msg.SenderID,
		ContentKind: msg.ContentKind.String(),
		Content:     msg.RawContent,
		MemberCount: msg.MemberCount,
		ReceivedAt:  msg.ReceivedAt,
		ArchivedAt:  time.Now().UTC(),
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		metrics.ArchiveWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to archive message: %w", err)
	}

	metrics.ArchiveWritesTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *MongoDBRepository) CountByGroup(ctx context.Context, groupID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, fmt.Errorf("failed to count archived messages: %w", err)
	}
	return count, nil
}

func (r *MongoDBRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	filter := bson.M{"archived_at": bson.M{"$lt": cutoff}}

	res, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archived messages: %w", err)
	}
	return res.DeletedCount, nil
}

// EnsureIndexes creates the lookup and retention indexes. Safe to call on
// every startup.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "received_at", Value: -1}}},
		{Keys: bson.D{{Key: "archived_at", Value: 1}}, Options: options.Index().SetName("archived_at_retention")},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create archive indexes: %w", err)
	}
	return nil
}
