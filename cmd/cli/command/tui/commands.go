package tui

import (
	"context"
	"time"

	"animetrack/cmd/cli/command/cache"
	"animetrack/cmd/cli/dto"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages

type cacheChangedMsg struct{}

type mutationDoneMsg struct{ err error }

type searchResultsMsg struct {
	page *dto.SearchPage
	err  error
}

const searchTimeout = 15 * time.Second

// Command factories for async operations

// WaitForChangeCmd blocks until the cache reports a change.
func WaitForChangeCmd(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return cacheChangedMsg{}
	}
}

func LoadCmd(c *cache.CollectionCache, userID int64) tea.Cmd {
	return func() tea.Msg {
		return mutationDoneMsg{err: c.Load(context.Background(), userID)}
	}
}

func AddCmd(c *cache.CollectionCache, req dto.CreateCollectionRequest) tea.Cmd {
	return func() tea.Msg {
		_, err := c.Add(context.Background(), req)
		return mutationDoneMsg{err: err}
	}
}

func UpdateCmd(c *cache.CollectionCache, itemID int64, patch dto.CollectionPatch) tea.Cmd {
	return func() tea.Msg {
		_, err := c.Update(context.Background(), itemID, patch)
		return mutationDoneMsg{err: err}
	}
}

func RemoveCmd(c *cache.CollectionCache, itemID int64) tea.Cmd {
	return func() tea.Msg {
		return mutationDoneMsg{err: c.Remove(context.Background(), itemID)}
	}
}

func SearchCmd(s Searcher, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		page, err := s.SearchAnime(ctx, query, 1)
		return searchResultsMsg{page: page, err: err}
	}
}
