package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpipe/internal/listing"
)

func TestListingRepository_InsertAndQueryByGroup(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	l := createTestListing("group1@chatroom", "出一级建造师带B 社保唯一 广州 3万", []string{"一级建造师", "安全员B证"})
	require.NoError(t, repo.Insert(ctx, l))
	assert.NotEmpty(t, l.ID)

	got, err := repo.QueryByGroup(ctx, "group1@chatroom", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, l.ID, got[0].ID)
	assert.Equal(t, []string{"一级建造师", "安全员B证"}, got[0].SplitCertificates)
	assert.Equal(t, int64(30000), got[0].Price)

	got, err = repo.QueryByGroup(ctx, "other@chatroom", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListingRepository_QueryByCertificate(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	require.NoError(t, repo.Insert(ctx, createTestListing("g1@chatroom", "出一建市政", []string{"一级建造师市政"})))
	require.NoError(t, repo.Insert(ctx, createTestListing("g2@chatroom", "出一建+造价", []string{"一级建造师市政", "造价工程师"})))
	require.NoError(t, repo.Insert(ctx, createTestListing("g3@chatroom", "聘二建", []string{"二级建造师"})))

	got, err := repo.QueryByCertificate(ctx, "一级建造师市政", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.QueryByCertificate(ctx, "造价工程师", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = repo.QueryByCertificate(ctx, "监理工程师", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListingRepository_QueryLimit(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, createTestListing("g@chatroom", "出证书", []string{"一级建造师"})))
	}

	got, err := repo.QueryByGroup(ctx, "g@chatroom", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestListingRepository_InsertDuplicateID(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	l := createTestListing("g@chatroom", "出证书", nil)
	require.NoError(t, repo.Insert(ctx, l))

	dup := createTestListing("g@chatroom", "出证书", nil)
	dup.ID = l.ID
	err := repo.Insert(ctx, dup)
	require.Error(t, err)
}

func TestListingRepository_ExistsByContent(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	exists, err := repo.ExistsByContent(ctx, "出一级建造师 广州")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Insert(ctx, createTestListing("g@chatroom", "出一级建造师 广州", nil)))

	exists, err = repo.ExistsByContent(ctx, "出一级建造师 广州")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListingRepository_Stats(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalListings)
	assert.Nil(t, stats.LatestListingAt)

	require.NoError(t, repo.Insert(ctx, createTestListing("g1@chatroom", "出一建", []string{"一级建造师"})))
	withoutCerts := createTestListing("g2@chatroom", "聊天消息", nil)
	withoutCerts.Price = 0
	require.NoError(t, repo.Insert(ctx, withoutCerts))

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalListings)
	assert.Equal(t, int64(2), stats.UniqueGroups)
	assert.Equal(t, int64(1), stats.UniqueSenders)
	assert.Equal(t, int64(1), stats.ListingsWithCertificates)
	assert.InDelta(t, 30000, stats.AveragePrice, 0.01)
	require.NotNil(t, stats.LatestListingAt)
}

func TestListingRepository_PurgeOlderThan(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Postgres: true})

	ctx := context.Background()
	repo := listing.NewRepository(infra.PostgresDB)

	require.NoError(t, repo.Insert(ctx, createTestListing("g@chatroom", "出证书", nil)))

	// fresh rows survive
	deleted, err := repo.PurgeOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	// backdate the row past the window
	_, err = infra.PostgresDB.ExecContext(ctx, `UPDATE trade_listings SET created_at = NOW() - INTERVAL '40 days'`)
	require.NoError(t, err)

	deleted, err = repo.PurgeOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.PurgeOlderThan(ctx, 0)
	assert.Error(t, err)
}
