package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"certpipe/internal/archive"
)

func TestArchiveRepository_InsertAndCount(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Mongo: true})

	ctx := context.Background()
	repo := archive.NewRepository(infra.MongoDB)

	require.NoError(t, repo.Insert(ctx, createTestMessage("1", "g1@chatroom", "出一级建造师")))
	require.NoError(t, repo.Insert(ctx, createTestMessage("2", "g1@chatroom", "聘造价工程师")))
	require.NoError(t, repo.Insert(ctx, createTestMessage("3", "g2@chatroom", "大家好")))

	count, err := repo.CountByGroup(ctx, "g1@chatroom")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountByGroup(ctx, "g3@chatroom")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestArchiveRepository_DocumentShape(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Mongo: true})

	ctx := context.Background()
	repo := archive.NewRepository(infra.MongoDB)

	msg := createTestMessage("769073", "g1@chatroom", "出一级建造师带B")
	require.NoError(t, repo.Insert(ctx, msg))

	var doc archive.RawMessage
	err := infra.MongoDB.Collection("raw_messages").
		FindOne(ctx, bson.M{"message_id": "769073"}).
		Decode(&doc)
	require.NoError(t, err)

	assert.Equal(t, "g1@chatroom", doc.GroupID)
	assert.Equal(t, "wxid_tester", doc.SenderID)
	assert.Equal(t, "text", doc.ContentKind)
	assert.Equal(t, "出一级建造师带B", doc.Content)
	assert.Equal(t, 120, doc.MemberCount)
	assert.False(t, doc.ArchivedAt.IsZero())
}

func TestArchiveRepository_PurgeOlderThan(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Mongo: true})

	ctx := context.Background()
	repo := archive.NewRepository(infra.MongoDB)

	require.NoError(t, repo.Insert(ctx, createTestMessage("1", "g@chatroom", "fresh")))

	deleted, err := repo.PurgeOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	// backdate the document beyond the retention window
	old := time.Now().UTC().AddDate(0, 0, -10)
	_, err = infra.MongoDB.Collection("raw_messages").UpdateMany(ctx,
		bson.M{}, bson.M{"$set": bson.M{"archived_at": old}})
	require.NoError(t, err)

	deleted, err = repo.PurgeOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestArchiveRepository_EnsureIndexes(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Mongo: true})

	ctx := context.Background()
	repo := archive.NewRepository(infra.MongoDB).(*archive.MongoDBRepository)

	require.NoError(t, repo.EnsureIndexes(ctx))
	// idempotent
	require.NoError(t, repo.EnsureIndexes(ctx))
}
