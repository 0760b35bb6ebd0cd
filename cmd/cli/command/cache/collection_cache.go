// Package cache keeps the client's view of one user's collection and applies
// changes optimistically: the local list changes first, then the server call
// either confirms it (the server's item replaces the local guess) or the
// change is undone.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"animetrack/cmd/cli/command/client"
	"animetrack/cmd/cli/command/state"
	"animetrack/cmd/cli/dto"
)

var (
	ErrMutationInFlight = errors.New("a change to this entry is already in progress")
	ErrNotCached        = errors.New("entry is not in the collection")
	ErrEmptyPatch       = errors.New("nothing to update")
)

type CollectionCache struct {
	api   client.API
	state *state.AppState
	now   func() time.Time

	mu       sync.Mutex
	items    []dto.CollectionItem
	inflight map[string]bool
	lastTemp int64
	subs     map[int]chan struct{}
	nextSub  int
}

func New(api client.API, st *state.AppState) *CollectionCache {
	return &CollectionCache{
		api:      api,
		state:    st,
		now:      time.Now,
		items:    make([]dto.CollectionItem, 0),
		inflight: make(map[string]bool),
		subs:     make(map[int]chan struct{}),
	}
}

// Items returns a snapshot of the current list, newest first.
func (c *CollectionCache) Items() []dto.CollectionItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.CollectionItem, len(c.items))
	copy(out, c.items)
	return out
}

// Find returns the cached item with the given id.
func (c *CollectionCache) Find(itemID int64) (dto.CollectionItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexLocked(itemID); idx >= 0 {
		return c.items[idx], true
	}
	return dto.CollectionItem{}, false
}

// Subscribe returns a channel that receives a signal after every change to
// the list. Signals coalesce; call the returned func to stop receiving.
func (c *CollectionCache) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Load replaces the cached list with the server's copy.
func (c *CollectionCache) Load(ctx context.Context, userID int64) error {
	_, err := await(ctx, c.state, func(ctx context.Context) (struct{}, error) {
		items, err := c.api.ListCollection(ctx, userID)
		if err != nil {
			c.fail("Loading collection", err)
			return struct{}{}, err
		}
		if items == nil {
			items = make([]dto.CollectionItem, 0)
		}
		c.mu.Lock()
		c.items = items
		c.notifyLocked()
		c.mu.Unlock()
		c.state.ClearError()
		return struct{}{}, nil
	})
	return err
}

// Add shows a pending placeholder right away and swaps in the server's item
// once the create succeeds. On failure the placeholder is removed; a conflict
// that names the stored item puts that item in the list instead.
func (c *CollectionCache) Add(ctx context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
	key := fmt.Sprintf("add:%d", req.AnimeID)

	c.mu.Lock()
	if c.inflight[key] {
		c.mu.Unlock()
		c.fail("Saving", ErrMutationInFlight)
		return nil, ErrMutationInFlight
	}
	c.inflight[key] = true
	c.lastTemp--
	tempID := c.lastTemp
	placeholder := req.Placeholder(tempID, c.now())
	c.items = append([]dto.CollectionItem{placeholder}, c.items...)
	c.notifyLocked()
	c.mu.Unlock()

	return await(ctx, c.state, func(ctx context.Context) (*dto.CollectionItem, error) {
		created, err := c.api.CreateCollectionItem(ctx, req)

		c.mu.Lock()
		delete(c.inflight, key)
		if err != nil {
			c.removeLocked(tempID)
			// the server already holds this anime; show its copy
			if existing := client.ExistingItem(err); existing != nil {
				if !c.replaceLocked(existing.ID, *existing) {
					c.insertSortedLocked(*existing)
				}
			}
		} else if !c.replaceLocked(tempID, *created) && c.indexLocked(created.ID) < 0 {
			// a Load dropped the placeholder while we waited
			c.items = append([]dto.CollectionItem{*created}, c.items...)
		}
		c.notifyLocked()
		c.mu.Unlock()

		if err != nil {
			c.fail("Saving", err)
			return nil, err
		}
		c.state.ClearError()
		return created, nil
	})
}

// Update applies patch locally, then reconciles with the server. A 404
// drops the entry; any other failure restores the previous value.
func (c *CollectionCache) Update(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error) {
	if patch.IsEmpty() {
		c.fail("Updating", ErrEmptyPatch)
		return nil, ErrEmptyPatch
	}
	key := itemKey(itemID)

	c.mu.Lock()
	idx := c.indexLocked(itemID)
	if idx < 0 {
		c.mu.Unlock()
		c.fail("Updating", ErrNotCached)
		return nil, ErrNotCached
	}
	if c.inflight[key] || c.items[idx].Pending {
		c.mu.Unlock()
		c.fail("Updating", ErrMutationInFlight)
		return nil, ErrMutationInFlight
	}
	c.inflight[key] = true
	prior := c.items[idx]
	optimistic := prior
	patch.ApplyTo(&optimistic)
	c.items[idx] = optimistic
	c.notifyLocked()
	c.mu.Unlock()

	return await(ctx, c.state, func(ctx context.Context) (*dto.CollectionItem, error) {
		updated, err := c.api.UpdateCollectionItem(ctx, itemID, patch)

		c.mu.Lock()
		delete(c.inflight, key)
		switch {
		case err == nil:
			c.replaceLocked(itemID, *updated)
		case client.IsNotFound(err):
			c.removeLocked(itemID)
		default:
			c.replaceLocked(itemID, prior)
		}
		c.notifyLocked()
		c.mu.Unlock()

		if err != nil {
			c.fail("Updating", err)
			return nil, err
		}
		c.state.ClearError()
		return updated, nil
	})
}

// Remove hides the entry immediately. If the server refuses, the entry goes
// back in list order; a 404 means it is already gone and counts as done.
func (c *CollectionCache) Remove(ctx context.Context, itemID int64) error {
	key := itemKey(itemID)

	c.mu.Lock()
	idx := c.indexLocked(itemID)
	if idx < 0 {
		c.mu.Unlock()
		c.fail("Removing", ErrNotCached)
		return ErrNotCached
	}
	if c.inflight[key] || c.items[idx].Pending {
		c.mu.Unlock()
		c.fail("Removing", ErrMutationInFlight)
		return ErrMutationInFlight
	}
	c.inflight[key] = true
	prior := c.items[idx]
	c.removeLocked(itemID)
	c.notifyLocked()
	c.mu.Unlock()

	_, err := await(ctx, c.state, func(ctx context.Context) (struct{}, error) {
		err := c.api.DeleteCollectionItem(ctx, itemID)
		if client.IsNotFound(err) {
			err = nil
		}

		c.mu.Lock()
		delete(c.inflight, key)
		if err != nil && c.indexLocked(itemID) < 0 {
			c.insertSortedLocked(prior)
		}
		c.notifyLocked()
		c.mu.Unlock()

		if err != nil {
			c.fail("Removing", err)
			return struct{}{}, err
		}
		c.state.ClearError()
		return struct{}{}, nil
	})
	return err
}

// await runs work on a context detached from ctx so the cache is reconciled
// even when the caller stops waiting. The caller gets ctx.Err() in that case.
func await[T any](ctx context.Context, st *state.AppState, work func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	detached := context.WithoutCancel(ctx)

	st.BeginRequest()
	go func() {
		v, err := work(detached)
		st.EndRequest()
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *CollectionCache) fail(action string, err error) {
	c.state.SetError(Describe(action, err))
}

// Describe turns an error from the cache or the API into one line for the user.
func Describe(action string, err error) string {
	var apiErr *client.APIError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrMutationInFlight):
		return action + " skipped: still waiting on the previous change"
	case errors.Is(err, ErrNotCached):
		return action + " failed: that entry is not in your collection"
	case errors.Is(err, ErrEmptyPatch):
		return action + " skipped: nothing to change"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusConflict:
			return action + " failed: this anime is already in your collection"
		case apiErr.StatusCode == http.StatusNotFound:
			return action + " failed: that entry no longer exists"
		case apiErr.StatusCode == http.StatusUnauthorized:
			return action + " failed: please log in again"
		case apiErr.StatusCode == http.StatusForbidden:
			return action + " failed: you cannot change this collection"
		case apiErr.StatusCode >= 500:
			return action + " failed: the server had a problem, try again"
		case apiErr.Message != "":
			return action + " failed: " + apiErr.Message
		}
		return action + " failed: the server rejected the request"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return action + " failed: the server took too long to answer"
	}
	return action + " failed: could not reach the server"
}

func itemKey(itemID int64) string {
	return fmt.Sprintf("item:%d", itemID)
}

func (c *CollectionCache) indexLocked(itemID int64) int {
	for i := range c.items {
		if c.items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (c *CollectionCache) replaceLocked(itemID int64, item dto.CollectionItem) bool {
	idx := c.indexLocked(itemID)
	if idx < 0 {
		return false
	}
	items := make([]dto.CollectionItem, len(c.items))
	copy(items, c.items)
	items[idx] = item
	c.items = items
	return true
}

func (c *CollectionCache) removeLocked(itemID int64) {
	idx := c.indexLocked(itemID)
	if idx < 0 {
		return
	}
	items := make([]dto.CollectionItem, 0, len(c.items)-1)
	items = append(items, c.items[:idx]...)
	c.items = append(items, c.items[idx+1:]...)
}

// insertSortedLocked places item by the server's list order: newest
// created_at first, then highest id.
func (c *CollectionCache) insertSortedLocked(item dto.CollectionItem) {
	idx := len(c.items)
	for i := range c.items {
		if sortsBefore(item, c.items[i]) {
			idx = i
			break
		}
	}
	items := make([]dto.CollectionItem, 0, len(c.items)+1)
	items = append(items, c.items[:idx]...)
	items = append(items, item)
	c.items = append(items, c.items[idx:]...)
}

func sortsBefore(a, b dto.CollectionItem) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (c *CollectionCache) notifyLocked() {
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
