package cache_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"animetrack/cmd/cli/command/cache"
	"animetrack/cmd/cli/command/client"
	"animetrack/cmd/cli/command/state"
	"animetrack/cmd/cli/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	list   func(ctx context.Context, userID int64) ([]dto.CollectionItem, error)
	create func(ctx context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error)
	update func(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error)
	del    func(ctx context.Context, itemID int64) error

	calls atomic.Int32
}

func (f *fakeAPI) ListCollection(ctx context.Context, userID int64) ([]dto.CollectionItem, error) {
	f.calls.Add(1)
	return f.list(ctx, userID)
}

func (f *fakeAPI) CreateCollectionItem(ctx context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
	f.calls.Add(1)
	return f.create(ctx, req)
}

func (f *fakeAPI) UpdateCollectionItem(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error) {
	f.calls.Add(1)
	return f.update(ctx, itemID, patch)
}

func (f *fakeAPI) DeleteCollectionItem(ctx context.Context, itemID int64) error {
	f.calls.Add(1)
	return f.del(ctx, itemID)
}

func seed() []dto.CollectionItem {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []dto.CollectionItem{
		{ID: 3, UserID: 1, AnimeID: 300, Status: dto.StatusWatching, EpisodesWatched: 2, CreatedAt: created},
		{ID: 2, UserID: 1, AnimeID: 200, Status: dto.StatusCompleted, EpisodesWatched: 12, CreatedAt: created},
		{ID: 1, UserID: 1, AnimeID: 100, Status: dto.StatusDropped, CreatedAt: created},
	}
}

// loaded returns a cache already filled with seed().
func loaded(t *testing.T, api *fakeAPI) (*cache.CollectionCache, *state.AppState) {
	t.Helper()
	if api.list == nil {
		api.list = func(context.Context, int64) ([]dto.CollectionItem, error) { return seed(), nil }
	}
	st := state.New("http://example.invalid")
	c := cache.New(api, st)
	require.NoError(t, c.Load(context.Background(), 1))
	return c, st
}

func intPtr(i int) *int { return &i }

func TestLoad(t *testing.T) {
	c, st := loaded(t, &fakeAPI{})
	assert.Equal(t, seed(), c.Items())
	assert.Empty(t, st.Error())
	assert.False(t, st.Loading())
}

func TestLoad_FailureKeepsItems(t *testing.T) {
	api := &fakeAPI{}
	c, st := loaded(t, api)
	api.list = func(context.Context, int64) ([]dto.CollectionItem, error) {
		return nil, &client.APIError{StatusCode: http.StatusInternalServerError}
	}

	err := c.Load(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, seed(), c.Items())
	assert.Equal(t, "Loading collection failed: the server had a problem, try again", st.Error())
}

func TestAdd_PlaceholderThenServerItem(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	api := &fakeAPI{
		create: func(ctx context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
			close(started)
			<-gate
			return &dto.CollectionItem{ID: 40, UserID: req.UserID, AnimeID: req.AnimeID, Status: dto.StatusPlanToWatch}, nil
		},
	}
	c, st := loaded(t, api)
	st.SetError("old message")

	type result struct {
		item *dto.CollectionItem
		err  error
	}
	done := make(chan result, 1)
	go func() {
		item, err := c.Add(context.Background(), dto.CreateCollectionRequest{UserID: 1, AnimeID: 38480, Origin: "search"})
		done <- result{item, err}
	}()

	<-started
	items := c.Items()
	require.Len(t, items, 4)
	assert.True(t, items[0].Pending)
	assert.Less(t, items[0].ID, int64(0))
	assert.Equal(t, dto.StatusPlanToWatch, items[0].Status)
	assert.True(t, st.Loading())

	close(gate)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, int64(40), r.item.ID)

	items = c.Items()
	require.Len(t, items, 4)
	assert.Equal(t, int64(40), items[0].ID)
	assert.False(t, items[0].Pending)
	assert.Empty(t, st.Error())
	assert.False(t, st.Loading())
}

func TestAdd_ConflictRollsBack(t *testing.T) {
	api := &fakeAPI{
		create: func(context.Context, dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
			return nil, &client.APIError{StatusCode: http.StatusConflict, Message: "duplicate", Existing: &seed()[0]}
		},
	}
	c, st := loaded(t, api)
	before := c.Items()

	_, err := c.Add(context.Background(), dto.CreateCollectionRequest{UserID: 1, AnimeID: 300})
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))
	assert.Equal(t, before, c.Items())
	assert.Equal(t, "Saving failed: this anime is already in your collection", st.Error())
}

func TestAdd_ConflictShowsStoredItem(t *testing.T) {
	stored := dto.CollectionItem{
		ID: 77, UserID: 1, AnimeID: 38480, Status: dto.StatusWatching,
		CreatedAt: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	api := &fakeAPI{
		create: func(context.Context, dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
			return nil, &client.APIError{StatusCode: http.StatusConflict, Message: "duplicate", Existing: &stored}
		},
	}
	c, st := loaded(t, api)

	_, err := c.Add(context.Background(), dto.CreateCollectionRequest{UserID: 1, AnimeID: 38480})
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))

	assert.Equal(t, []int64{3, 2, 1, 77}, ids(c.Items()))
	got, ok := c.Find(77)
	require.True(t, ok)
	assert.Equal(t, stored, got)
	assert.Equal(t, "Saving failed: this anime is already in your collection", st.Error())
}

func TestAdd_SecondAddForSameAnimeIsRefused(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	api := &fakeAPI{
		create: func(ctx context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
			close(started)
			<-gate
			return &dto.CollectionItem{ID: 50, AnimeID: req.AnimeID}, nil
		},
	}
	c, st := loaded(t, api)
	calls := api.calls.Load()

	done := make(chan error, 1)
	go func() {
		_, err := c.Add(context.Background(), dto.CreateCollectionRequest{UserID: 1, AnimeID: 9})
		done <- err
	}()
	<-started

	_, err := c.Add(context.Background(), dto.CreateCollectionRequest{UserID: 1, AnimeID: 9})
	assert.ErrorIs(t, err, cache.ErrMutationInFlight)
	assert.Contains(t, st.Error(), "still waiting")

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, calls+1, api.calls.Load())
	assert.Len(t, c.Items(), 4)
}

func TestUpdate(t *testing.T) {
	t.Run("success takes the server item", func(t *testing.T) {
		api := &fakeAPI{
			update: func(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error) {
				item := seed()[0]
				patch.ApplyTo(&item)
				item.UpdatedAt = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
				return &item, nil
			},
		}
		c, st := loaded(t, api)

		got, err := c.Update(context.Background(), 3, dto.CollectionPatch{EpisodesWatched: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, 5, got.EpisodesWatched)

		item, ok := c.Find(3)
		require.True(t, ok)
		assert.Equal(t, 5, item.EpisodesWatched)
		assert.False(t, item.UpdatedAt.IsZero())
		assert.Empty(t, st.Error())
	})

	t.Run("failure restores the previous list", func(t *testing.T) {
		api := &fakeAPI{
			update: func(context.Context, int64, dto.CollectionPatch) (*dto.CollectionItem, error) {
				return nil, &client.APIError{StatusCode: http.StatusBadRequest, Message: "validation failed"}
			},
		}
		c, st := loaded(t, api)
		before := c.Items()

		_, err := c.Update(context.Background(), 2, dto.CollectionPatch{EpisodesWatched: intPtr(-1)})
		require.Error(t, err)
		assert.Equal(t, before, c.Items())
		assert.Equal(t, "Updating failed: validation failed", st.Error())
	})

	t.Run("not found drops the entry", func(t *testing.T) {
		api := &fakeAPI{
			update: func(context.Context, int64, dto.CollectionPatch) (*dto.CollectionItem, error) {
				return nil, &client.APIError{StatusCode: http.StatusNotFound}
			},
		}
		c, _ := loaded(t, api)

		_, err := c.Update(context.Background(), 2, dto.CollectionPatch{IsFavorite: new(bool)})
		require.Error(t, err)
		_, ok := c.Find(2)
		assert.False(t, ok)
		assert.Len(t, c.Items(), 2)
	})

	t.Run("empty patch and unknown item never reach the server", func(t *testing.T) {
		api := &fakeAPI{}
		c, st := loaded(t, api)
		calls := api.calls.Load()

		_, err := c.Update(context.Background(), 3, dto.CollectionPatch{})
		assert.ErrorIs(t, err, cache.ErrEmptyPatch)
		_, err = c.Update(context.Background(), 99, dto.CollectionPatch{EpisodesWatched: intPtr(1)})
		assert.ErrorIs(t, err, cache.ErrNotCached)
		assert.Equal(t, calls, api.calls.Load())
		assert.Contains(t, st.Error(), "not in your collection")
	})
}

func TestRemove(t *testing.T) {
	t.Run("failure restores the entry", func(t *testing.T) {
		api := &fakeAPI{
			del: func(context.Context, int64) error { return errors.New("dial tcp: connection refused") },
		}
		c, st := loaded(t, api)
		before := c.Items()

		err := c.Remove(context.Background(), 2)
		require.Error(t, err)
		assert.Equal(t, before, c.Items())
		assert.Equal(t, "Removing failed: could not reach the server", st.Error())
	})

	t.Run("not found keeps it removed", func(t *testing.T) {
		api := &fakeAPI{
			del: func(context.Context, int64) error { return &client.APIError{StatusCode: http.StatusNotFound} },
		}
		c, st := loaded(t, api)

		require.NoError(t, c.Remove(context.Background(), 2))
		_, ok := c.Find(2)
		assert.False(t, ok)
		assert.Empty(t, st.Error())
	})
}

func ids(items []dto.CollectionItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRemove_FailureAfterInterleavedAdd(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	api := &fakeAPI{
		del: func(context.Context, int64) error {
			close(started)
			<-gate
			return &client.APIError{StatusCode: http.StatusInternalServerError}
		},
		create: func(_ context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
			item := req.Placeholder(9, time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC))
			item.Pending = false
			return &item, nil
		},
	}
	c, _ := loaded(t, api)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Remove(context.Background(), 1) }()
	<-started

	_, err := c.Add(context.Background(), dto.CreateCollectionRequest{UserID: 1, AnimeID: 900})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 3, 2}, ids(c.Items()))

	close(gate)
	require.Error(t, <-errCh)
	assert.Equal(t, []int64{9, 3, 2, 1}, ids(c.Items()))
}

func TestCallerGivesUp_ReconcileStillHappens(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		del: func(context.Context, int64) error {
			<-gate
			return &client.APIError{StatusCode: http.StatusInternalServerError}
		},
	}
	c, st := loaded(t, api)
	before := c.Items()

	ctx, cancel := context.WithCancel(context.Background())
	changes, stop := c.Subscribe()
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Remove(ctx, 3) }()

	<-changes // optimistic removal
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Len(t, c.Items(), 2)

	close(gate)
	assert.Eventually(t, func() bool {
		return !st.Loading()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, before, c.Items())
	assert.Contains(t, st.Error(), "server had a problem")
}

func TestSubscribe(t *testing.T) {
	api := &fakeAPI{
		del: func(context.Context, int64) error { return nil },
	}
	c, _ := loaded(t, api)

	changes, stop := c.Subscribe()
	require.NoError(t, c.Remove(context.Background(), 1))

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}

	stop()
	require.NoError(t, c.Remove(context.Background(), 2))
	select {
	case <-changes:
		// one coalesced signal may still be buffered from the first remove
	default:
	}
}

func TestConcurrentMutationsOnDifferentItems(t *testing.T) {
	api := &fakeAPI{
		update: func(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error) {
			for _, it := range seed() {
				if it.ID == itemID {
					patch.ApplyTo(&it)
					return &it, nil
				}
			}
			return nil, &client.APIError{StatusCode: http.StatusNotFound}
		},
	}
	c, st := loaded(t, api)

	var wg sync.WaitGroup
	for _, id := range []int64{1, 2, 3} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			fav := true
			_, err := c.Update(context.Background(), id, dto.CollectionPatch{IsFavorite: &fav})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	for _, it := range c.Items() {
		assert.True(t, it.IsFavorite, it.ID)
	}
	assert.False(t, st.Loading())
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&client.APIError{StatusCode: http.StatusUnauthorized}, "Saving failed: please log in again"},
		{&client.APIError{StatusCode: http.StatusForbidden}, "Saving failed: you cannot change this collection"},
		{&client.APIError{StatusCode: http.StatusTeapot}, "Saving failed: the server rejected the request"},
		{context.DeadlineExceeded, "Saving failed: the server took too long to answer"},
		{errors.New("boom"), "Saving failed: could not reach the server"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cache.Describe("Saving", tc.err))
	}
}
