package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"animetrack/database"
	"animetrack/internal/logger"
	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/microservices/http-api/repository"
	"animetrack/internal/microservices/http-api/service"
	"animetrack/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
func statusPtr(s models.WatchStatus) *models.WatchStatus {
	return &s
}

type MockMetadata struct {
	mock.Mock
}

func (m *MockMetadata) GetAnime(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error) {
	args := m.Called(ctx, animeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.AnimeMetadata), args.Error(1)
}

func newRepo(t *testing.T) repository.CollectionRepository {
	t.Helper()
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "svc.db")))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return repository.NewCollectionRepository(db)
}

func newService(t *testing.T, opts ...service.CollectionOption) service.CollectionService {
	opts = append([]service.CollectionOption{service.WithLogger(logger.Discard())}, opts...)
	return service.NewCollectionService(newRepo(t), opts...)
}

func TestCreate_Defaults(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	svc := newService(t, service.WithClock(func() time.Time { return fixed }))

	item, err := svc.Create(ctx, 1, 38480, models.CollectionFields{})
	require.NoError(t, err)

	assert.NotZero(t, item.ID)
	assert.Equal(t, models.StatusWatching, item.Status)
	assert.Equal(t, 0, item.EpisodesWatched)
	assert.False(t, item.IsFavorite)
	assert.Nil(t, item.Rating)
	assert.Nil(t, item.Notes)

	got, err := svc.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, models.StatusWatching, got.Status)
	assert.True(t, fixed.Equal(got.CreatedAt))
}

func TestCreate_OriginPicksStatus(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	fromSearch, err := svc.Create(ctx, 1, 1, models.CollectionFields{Origin: models.OriginSearch})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanToWatch, fromSearch.Status)

	manual, err := svc.Create(ctx, 1, 2, models.CollectionFields{Origin: models.OriginManual})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWatching, manual.Status)

	explicit, err := svc.Create(ctx, 1, 3, models.CollectionFields{
		Origin: models.OriginSearch,
		Status: statusPtr(models.StatusCompleted),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, explicit.Status)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	tests := []struct {
		name    string
		userID  int64
		animeID int64
		fields  models.CollectionFields
		field   string
	}{
		{name: "missing user", userID: 0, animeID: 1, field: "user_id"},
		{name: "missing anime", userID: 1, animeID: 0, field: "anime_id"},
		{name: "rating above 10", userID: 1, animeID: 1, fields: models.CollectionFields{Rating: floatPtr(11)}, field: "rating"},
		{name: "negative episodes", userID: 1, animeID: 1, fields: models.CollectionFields{EpisodesWatched: intPtr(-1)}, field: "episodes_watched"},
		{name: "unknown status", userID: 1, animeID: 1, fields: models.CollectionFields{Status: statusPtr("paused")}, field: "status"},
		{name: "unknown origin", userID: 1, animeID: 1, fields: models.CollectionFields{Origin: "import"}, field: "origin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.userID, tt.animeID, tt.fields)
			require.ErrorIs(t, err, service.ErrValidation)

			var verr *service.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestCreate_ConflictCarriesExisting(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	first, err := svc.Create(ctx, 1, 38480, models.CollectionFields{Rating: floatPtr(9)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1, 38480, models.CollectionFields{})
	require.ErrorIs(t, err, service.ErrConflict)

	var conflict *service.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.NotNil(t, conflict.Existing)
	assert.Equal(t, first.ID, conflict.Existing.ID)
	require.NotNil(t, conflict.Existing.Rating)
	assert.Equal(t, 9.0, *conflict.Existing.Rating)
}

func TestCreate_ConcurrentSamePair(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, 7, 5114, models.CollectionFields{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.Is(err, service.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)

	items, err := svc.ListForUser(ctx, 7, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCreate_Enrichment(t *testing.T) {
	ctx := context.Background()
	eps := 12
	score := 8.9
	meta := new(MockMetadata)
	meta.On("GetAnime", mock.Anything, int64(38480)).Return(&shared.AnimeMetadata{
		AnimeID:  38480,
		Title:    "Kaguya-sama: Love is War",
		Episodes: &eps,
		Score:    &score,
		ImageURL: "https://cdn.example/k.jpg",
	}, nil)
	meta.On("GetAnime", mock.Anything, int64(1)).Return(nil, shared.ErrUpstreamUnavailable)

	svc := newService(t, service.WithMetadata(meta))

	item, err := svc.Create(ctx, 1, 38480, models.CollectionFields{})
	require.NoError(t, err)
	require.NotNil(t, item.Title)
	assert.Equal(t, "Kaguya-sama: Love is War", *item.Title)
	require.NotNil(t, item.TotalEpisodes)
	assert.Equal(t, 12, *item.TotalEpisodes)
	assert.Nil(t, item.Synopsis)

	// upstream down: item still saved, no snapshot
	plain, err := svc.Create(ctx, 1, 1, models.CollectionFields{})
	require.NoError(t, err)
	assert.NotZero(t, plain.ID)
	assert.Nil(t, plain.Title)

	meta.AssertExpectations(t)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	item, err := svc.Create(ctx, 1, 20, models.CollectionFields{Rating: floatPtr(7)})
	require.NoError(t, err)

	t.Run("empty patch is a no-op error", func(t *testing.T) {
		_, err := svc.Update(ctx, item.ID, models.CollectionPatch{})
		assert.ErrorIs(t, err, service.ErrNoOp)
	})

	t.Run("single field changes only that field", func(t *testing.T) {
		updated, err := svc.Update(ctx, item.ID, models.CollectionPatch{EpisodesWatched: models.Some(5)})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.EpisodesWatched)
		assert.Equal(t, item.Status, updated.Status)
		assert.Equal(t, item.IsFavorite, updated.IsFavorite)
		require.NotNil(t, updated.Rating)
		assert.Equal(t, 7.0, *updated.Rating)
		assert.Equal(t, item.AnimeID, updated.AnimeID)
		assert.True(t, item.CreatedAt.Equal(updated.CreatedAt))
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := svc.Update(ctx, item.ID, models.CollectionPatch{Rating: models.Some(42.0)})
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("null clears rating", func(t *testing.T) {
		updated, err := svc.Update(ctx, item.ID, models.CollectionPatch{Rating: models.Null[float64]()})
		require.NoError(t, err)
		assert.Nil(t, updated.Rating)
	})

	t.Run("missing item", func(t *testing.T) {
		_, err := svc.Update(ctx, 424242, models.CollectionPatch{IsFavorite: models.Some(true)})
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	item, err := svc.Create(ctx, 1, 30, models.CollectionFields{})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, item.ID))

	_, err = svc.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, item.ID), service.ErrNotFound)
}

func TestListForUser_Clamps(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	for i := int64(1); i <= 3; i++ {
		_, err := svc.Create(ctx, 2, i, models.CollectionFields{})
		require.NoError(t, err)
	}

	items, err := svc.ListForUser(ctx, 2, -5, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	count, err := svc.CountForUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		offset, limit         int
		wantOffset, wantLimit int
	}{
		{0, 0, 0, service.DefaultListLimit},
		{-1, 10, 0, 10},
		{5, 500, 5, service.MaxListLimit},
		{3, 25, 3, 25},
	}
	for _, tt := range tests {
		offset, limit := service.ClampPage(tt.offset, tt.limit)
		assert.Equal(t, tt.wantOffset, offset)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

type failingRepo struct {
	repository.CollectionRepository
}

func (failingRepo) ListByUser(context.Context, int64, int, int) ([]models.CollectionItem, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIsWrapped(t *testing.T) {
	svc := service.NewCollectionService(failingRepo{}, service.WithLogger(logger.Discard()))

	_, err := svc.ListForUser(context.Background(), 1, 0, 10)
	assert.ErrorIs(t, err, service.ErrStoreFailure)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestRefreshMetadata(t *testing.T) {
	ctx := context.Background()
	eps := 26
	meta := new(MockMetadata)
	meta.On("GetAnime", mock.Anything, int64(1)).Return(nil, shared.ErrUpstreamUnavailable).Once()
	meta.On("GetAnime", mock.Anything, int64(1)).Return(&shared.AnimeMetadata{
		AnimeID:  1,
		Title:    "Cowboy Bebop",
		Episodes: &eps,
	}, nil)
	meta.On("GetAnime", mock.Anything, int64(404)).Return(nil, shared.ErrAnimeNotFound)

	svc := newService(t, service.WithMetadata(meta))

	// enrichment fails at create time, the item is saved bare
	item, err := svc.Create(ctx, 1, 1, models.CollectionFields{EpisodesWatched: intPtr(3)})
	require.NoError(t, err)
	require.Nil(t, item.Title)

	missing, err := svc.ListMissingMetadata(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	refreshed, err := svc.RefreshMetadata(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.Title)
	assert.Equal(t, "Cowboy Bebop", *refreshed.Title)
	assert.Equal(t, 3, refreshed.EpisodesWatched)

	missing, err = svc.ListMissingMetadata(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = svc.RefreshMetadata(ctx, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)

	gone, err := svc.Create(ctx, 1, 404, models.CollectionFields{})
	require.NoError(t, err)
	_, err = svc.RefreshMetadata(ctx, gone.ID)
	assert.ErrorIs(t, err, service.ErrAnimeNotFound)
}

func TestRefreshMetadata_NoSource(t *testing.T) {
	svc := newService(t)
	item, err := svc.Create(context.Background(), 1, 1, models.CollectionFields{})
	require.NoError(t, err)

	_, err = svc.RefreshMetadata(context.Background(), item.ID)
	assert.ErrorIs(t, err, service.ErrUpstreamUnavailable)
}

func TestCreate_EnrichmentDisabled(t *testing.T) {
	meta := new(MockMetadata)
	svc := newService(t, service.WithMetadata(meta), service.WithCreateEnrichment(false))

	item, err := svc.Create(context.Background(), 1, 38480, models.CollectionFields{})
	require.NoError(t, err)
	assert.Nil(t, item.Title)
	meta.AssertNotCalled(t, "GetAnime", mock.Anything, mock.Anything)
}

// stalledLookup never answers before its context ends.
type stalledLookup struct{}

func (stalledLookup) GetAnime(ctx context.Context, _ int64) (*shared.AnimeMetadata, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCreate_StalledUpstreamStillSaves(t *testing.T) {
	t.Run("caller deadline", func(t *testing.T) {
		svc := newService(t, service.WithMetadata(stalledLookup{}))

		ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
		defer cancel()

		item, err := svc.Create(ctx, 1, 38480, models.CollectionFields{})
		require.NoError(t, err)
		assert.Nil(t, item.Title)

		stored, err := svc.GetByID(context.Background(), item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(38480), stored.AnimeID)
	})

	t.Run("enrich timeout", func(t *testing.T) {
		svc := newService(t,
			service.WithMetadata(stalledLookup{}),
			service.WithEnrichTimeout(50*time.Millisecond),
		)

		start := time.Now()
		item, err := svc.Create(context.Background(), 1, 5114, models.CollectionFields{})
		require.NoError(t, err)
		assert.NotZero(t, item.ID)
		assert.Less(t, time.Since(start), time.Second)
	})
}
