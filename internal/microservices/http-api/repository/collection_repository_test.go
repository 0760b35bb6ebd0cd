package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"animetrack/database"
	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/microservices/http-api/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func floatPtr(f float64) *float64 { return &f }
func stringPtr(s string) *string  { return &s }

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newBolt(t *testing.T) repository.CollectionRepository {
	t.Helper()
	repo, err := repository.NewBoltCollectionRepository(filepath.Join(t.TempDir(), "collection.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// stores runs fn once per CollectionRepository implementation.
func stores(t *testing.T, fn func(t *testing.T, repo repository.CollectionRepository)) {
	t.Run("gorm_sqlite", func(t *testing.T) {
		fn(t, repository.NewCollectionRepository(newSQLiteDB(t)))
	})
	t.Run("bolt", func(t *testing.T) {
		fn(t, newBolt(t))
	})
}

func newItem(userID, animeID int64, created time.Time) *models.CollectionItem {
	return &models.CollectionItem{
		UserID:    userID,
		AnimeID:   animeID,
		Status:    models.StatusWatching,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCollectionRepository_CreateAndGet(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		item := newItem(1, 38480, now)
		item.Rating = floatPtr(8.5)
		item.Title = stringPtr("Kaguya-sama")
		require.NoError(t, repo.Create(ctx, item))
		assert.NotZero(t, item.ID)

		got, err := repo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.UserID)
		assert.Equal(t, int64(38480), got.AnimeID)
		assert.Equal(t, models.StatusWatching, got.Status)
		assert.Equal(t, 0, got.EpisodesWatched)
		assert.False(t, got.IsFavorite)
		require.NotNil(t, got.Rating)
		assert.Equal(t, 8.5, *got.Rating)
		assert.Nil(t, got.Notes)
		assert.True(t, now.Equal(got.CreatedAt))

		byPair, err := repo.GetByUserAndAnime(ctx, 1, 38480)
		require.NoError(t, err)
		assert.Equal(t, item.ID, byPair.ID)
	})
}

func TestCollectionRepository_Duplicate(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		now := time.Now().UTC()

		require.NoError(t, repo.Create(ctx, newItem(1, 5, now)))
		err := repo.Create(ctx, newItem(1, 5, now))
		assert.ErrorIs(t, err, repository.ErrDuplicate)

		// same anime, different user is fine
		assert.NoError(t, repo.Create(ctx, newItem(2, 5, now)))
	})
}

func TestCollectionRepository_ConcurrentCreate(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		now := time.Now().UTC()

		const workers = 8
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			ok, dupes  int
			unexpected []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Create(ctx, newItem(3, 99, now))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, repository.ErrDuplicate):
					dupes++
				default:
					unexpected = append(unexpected, err)
				}
			}()
		}
		wg.Wait()

		assert.Empty(t, unexpected)
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, dupes)

		count, err := repo.CountByUser(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestCollectionRepository_ListOrderAndPaging(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		for i := int64(1); i <= 5; i++ {
			require.NoError(t, repo.Create(ctx, newItem(1, i, base.Add(time.Duration(i)*time.Hour))))
		}
		// another user's item never shows up
		require.NoError(t, repo.Create(ctx, newItem(2, 1, base)))

		all, err := repo.ListByUser(ctx, 1, 0, 100)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, want := range []int64{5, 4, 3, 2, 1} {
			assert.Equal(t, want, all[i].AnimeID)
		}

		page, err := repo.ListByUser(ctx, 1, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, int64(4), page[0].AnimeID)
		assert.Equal(t, int64(3), page[1].AnimeID)

		past, err := repo.ListByUser(ctx, 1, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, past)

		none, err := repo.ListByUser(ctx, 42, 0, 100)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}

func TestCollectionRepository_ListTieBreaksOnID(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		same := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		first := newItem(1, 10, same)
		second := newItem(1, 11, same)
		require.NoError(t, repo.Create(ctx, first))
		require.NoError(t, repo.Create(ctx, second))

		items, err := repo.ListByUser(ctx, 1, 0, 10)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, second.ID, items[0].ID)
		assert.Equal(t, first.ID, items[1].ID)
	})
}

func TestCollectionRepository_Update(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		created := time.Now().UTC().Add(-time.Hour)

		item := newItem(1, 7, created)
		item.Rating = floatPtr(6)
		item.Notes = stringPtr("rewatch later")
		require.NoError(t, repo.Create(ctx, item))

		updated, err := repo.Update(ctx, item.ID, models.CollectionPatch{
			EpisodesWatched: models.Some(5),
		})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.EpisodesWatched)
		assert.Equal(t, models.StatusWatching, updated.Status)
		require.NotNil(t, updated.Rating)
		assert.Equal(t, 6.0, *updated.Rating)
		require.NotNil(t, updated.Notes)
		assert.Equal(t, "rewatch later", *updated.Notes)
		assert.True(t, updated.UpdatedAt.After(created))

		cleared, err := repo.Update(ctx, item.ID, models.CollectionPatch{
			Rating: models.Null[float64](),
			Notes:  models.Null[string](),
		})
		require.NoError(t, err)
		assert.Nil(t, cleared.Rating)
		assert.Nil(t, cleared.Notes)
		assert.Equal(t, 5, cleared.EpisodesWatched)

		_, err = repo.Update(ctx, 9999, models.CollectionPatch{IsFavorite: models.Some(true)})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestCollectionRepository_Delete(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()

		item := newItem(1, 8, time.Now().UTC())
		require.NoError(t, repo.Create(ctx, item))
		require.NoError(t, repo.Delete(ctx, item.ID))

		_, err := repo.GetByID(ctx, item.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, item.ID), repository.ErrNotFound)

		// pair is free again
		assert.NoError(t, repo.Create(ctx, newItem(1, 8, time.Now().UTC())))
	})
}

func TestCollectionRepository_Ping(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		assert.NoError(t, repo.Ping(context.Background()))
	})
}

func TestCollectionRepository_MissingMetadata(t *testing.T) {
	stores(t, func(t *testing.T, repo repository.CollectionRepository) {
		ctx := context.Background()
		created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

		var ids []int64
		for anime := int64(1); anime <= 4; anime++ {
			item := newItem(1, anime, created)
			if anime == 2 {
				item.Title = stringPtr("already known")
			}
			require.NoError(t, repo.Create(ctx, item))
			ids = append(ids, item.ID)
		}

		missing, err := repo.ListMissingMetadata(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, missing, 2)
		assert.Equal(t, ids[0], missing[0].ID)
		assert.Equal(t, ids[2], missing[1].ID)

		rest, err := repo.ListMissingMetadata(ctx, missing[1].ID, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, ids[3], rest[0].ID)

		episodes := 26
		require.NoError(t, repo.SetMetadata(ctx, ids[0], models.MetadataSnapshot{
			Title:         stringPtr("Cowboy Bebop"),
			TotalEpisodes: &episodes,
			Score:         floatPtr(8.75),
		}))

		got, err := repo.GetByID(ctx, ids[0])
		require.NoError(t, err)
		require.NotNil(t, got.Title)
		assert.Equal(t, "Cowboy Bebop", *got.Title)
		require.NotNil(t, got.TotalEpisodes)
		assert.Equal(t, 26, *got.TotalEpisodes)
		assert.Nil(t, got.Synopsis)
		assert.True(t, created.Equal(got.UpdatedAt))

		missing, err = repo.ListMissingMetadata(ctx, 0, 10)
		require.NoError(t, err)
		assert.Len(t, missing, 2)

		assert.ErrorIs(t, repo.SetMetadata(ctx, 9999, models.MetadataSnapshot{}), repository.ErrNotFound)
	})
}
