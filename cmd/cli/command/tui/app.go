package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"animetrack/cmd/cli/command/cache"
	"animetrack/cmd/cli/command/state"
	"animetrack/cmd/cli/dto"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

// Searcher looks up anime for the search view.
type Searcher interface {
	SearchAnime(ctx context.Context, query string, page int) (*dto.SearchPage, error)
}

// ViewState is the screen the model is showing.
type ViewState int

const (
	StateBrowsing ViewState = iota
	StateSearchInput
	StateResults
	StateRatingInput
	StateAddInput
	StateFilterInput
)

type Model struct {
	cache    *cache.CollectionCache
	searcher Searcher
	session  *state.AppState
	userID   int64

	changes <-chan struct{}
	stop    func()

	State     ViewState
	Items     []dto.CollectionItem
	Visible   []dto.CollectionItem // Items narrowed by Filter; Cursor indexes it
	Filter    string
	Cursor    int
	Results   []dto.AnimeMetadata
	ResultAt  int
	StatusMsg string

	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	showHelp bool
	width    int
}

func New(c *cache.CollectionCache, searcher Searcher, session *state.AppState, userID int64) Model {
	ti := textinput.New()
	ti.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Accent)

	changes, stop := c.Subscribe()
	return Model{
		cache:    c,
		searcher: searcher,
		session:  session,
		userID:   userID,
		changes:  changes,
		stop:     stop,
		input:    ti,
		spinner:  sp,
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		WaitForChangeCmd(m.changes),
		LoadCmd(m.cache, m.userID),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case cacheChangedMsg:
		m.Items = m.cache.Items()
		m.applyFilter()
		return m, WaitForChangeCmd(m.changes)

	case mutationDoneMsg:
		// the cache already put any failure on the session
		return m, nil

	case searchResultsMsg:
		if msg.err != nil {
			m.session.SetError(cache.Describe("Search", msg.err))
			m.State = StateBrowsing
			return m, nil
		}
		m.session.ClearError()
		m.Results = msg.page.Results
		m.ResultAt = 0
		m.State = StateResults
		if len(m.Results) == 0 {
			m.StatusMsg = "No results"
			m.State = StateBrowsing
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.State {
	case StateSearchInput, StateRatingInput, StateAddInput, StateFilterInput:
		return m.handleInputKey(msg)
	case StateResults:
		return m.handleResultsKey(msg)
	}

	m.StatusMsg = ""
	switch {
	case key.Matches(msg, Keys.Quit):
		m.stop()
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, Keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil

	case key.Matches(msg, Keys.Down):
		if m.Cursor < len(m.Visible)-1 {
			m.Cursor++
		}
		return m, nil

	case key.Matches(msg, Keys.Escape):
		m.Filter = ""
		m.applyFilter()
		return m, nil

	case key.Matches(msg, Keys.Filter):
		next, cmd := m.openInput(StateFilterInput, "filter: ")
		fm := next.(Model)
		fm.input.SetValue(m.Filter)
		return fm, cmd

	case key.Matches(msg, Keys.Reload):
		return m, LoadCmd(m.cache, m.userID)

	case key.Matches(msg, Keys.Search):
		return m.openInput(StateSearchInput, "search anime: ")

	case key.Matches(msg, Keys.AddByID):
		return m.openInput(StateAddInput, "anime id: ")
	}

	item, ok := m.selected()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, Keys.NextEp):
		eps := item.EpisodesWatched + 1
		return m, UpdateCmd(m.cache, item.ID, dto.CollectionPatch{EpisodesWatched: &eps})

	case key.Matches(msg, Keys.PrevEp):
		if item.EpisodesWatched == 0 {
			return m, nil
		}
		eps := item.EpisodesWatched - 1
		return m, UpdateCmd(m.cache, item.ID, dto.CollectionPatch{EpisodesWatched: &eps})

	case key.Matches(msg, Keys.Status):
		next := nextStatus(item.Status)
		return m, UpdateCmd(m.cache, item.ID, dto.CollectionPatch{Status: &next})

	case key.Matches(msg, Keys.Favorite):
		fav := !item.IsFavorite
		return m, UpdateCmd(m.cache, item.ID, dto.CollectionPatch{IsFavorite: &fav})

	case key.Matches(msg, Keys.Rate):
		return m.openInput(StateRatingInput, "rating 0-10 (empty clears): ")

	case key.Matches(msg, Keys.Delete):
		return m, RemoveCmd(m.cache, item.ID)
	}
	return m, nil
}

func (m Model) openInput(s ViewState, prompt string) (tea.Model, tea.Cmd) {
	m.State = s
	m.input.Prompt = prompt
	m.input.SetValue("")
	return m, m.input.Focus()
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape):
		m.input.Blur()
		m.State = StateBrowsing
		return m, nil

	case key.Matches(msg, Keys.Enter):
		value := strings.TrimSpace(m.input.Value())
		s := m.State
		m.input.Blur()
		m.State = StateBrowsing
		return m.submit(s, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(s ViewState, value string) (tea.Model, tea.Cmd) {
	switch s {
	case StateFilterInput:
		m.Filter = value
		m.Cursor = 0
		m.applyFilter()
		return m, nil

	case StateSearchInput:
		if value == "" {
			return m, nil
		}
		m.StatusMsg = "Searching…"
		return m, SearchCmd(m.searcher, value)

	case StateAddInput:
		animeID, err := strconv.ParseInt(value, 10, 64)
		if err != nil || animeID <= 0 {
			m.session.SetError("Saving failed: anime id must be a positive number")
			return m, nil
		}
		return m, AddCmd(m.cache, dto.CreateCollectionRequest{UserID: m.userID, AnimeID: animeID, Origin: "manual"})

	case StateRatingInput:
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		if value == "" {
			return m, UpdateCmd(m.cache, item.ID, dto.CollectionPatch{ClearRating: true})
		}
		r, err := strconv.ParseFloat(value, 64)
		if err != nil || r < 0 || r > 10 {
			m.session.SetError("Updating failed: rating must be between 0 and 10")
			return m, nil
		}
		return m, UpdateCmd(m.cache, item.ID, dto.CollectionPatch{Rating: &r})
	}
	return m, nil
}

func (m Model) handleResultsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape), key.Matches(msg, Keys.Quit):
		m.State = StateBrowsing
	case key.Matches(msg, Keys.Up):
		if m.ResultAt > 0 {
			m.ResultAt--
		}
	case key.Matches(msg, Keys.Down):
		if m.ResultAt < len(m.Results)-1 {
			m.ResultAt++
		}
	case key.Matches(msg, Keys.Enter):
		picked := m.Results[m.ResultAt]
		m.State = StateBrowsing
		m.StatusMsg = "Saving " + picked.Title
		return m, AddCmd(m.cache, dto.CreateCollectionRequest{UserID: m.userID, AnimeID: picked.AnimeID, Origin: "search"})
	}
	return m, nil
}

func (m Model) selected() (dto.CollectionItem, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Visible) {
		return dto.CollectionItem{}, false
	}
	return m.Visible[m.Cursor], true
}

// titleSource feeds item titles to fuzzy.FindFrom without copying them.
type titleSource []dto.CollectionItem

func (s titleSource) String(i int) string { return strings.ToLower(s[i].DisplayTitle()) }
func (s titleSource) Len() int            { return len(s) }

// applyFilter recomputes Visible, best match first.
func (m *Model) applyFilter() {
	if m.Filter == "" {
		m.Visible = m.Items
	} else {
		matches := fuzzy.FindFrom(strings.ToLower(m.Filter), titleSource(m.Items))
		m.Visible = make([]dto.CollectionItem, len(matches))
		for i, match := range matches {
			m.Visible[i] = m.Items[match.Index]
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.Cursor >= len(m.Visible) {
		m.Cursor = len(m.Visible) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

func nextStatus(current string) string {
	for i, s := range dto.Statuses {
		if s == current {
			return dto.Statuses[(i+1)%len(dto.Statuses)]
		}
	}
	return dto.Statuses[0]
}

func (m Model) View() string {
	var b strings.Builder

	header := TitleStyle.Render("animetrack")
	if name := m.session.Username(); name != "" {
		header += SubtitleStyle.Render(fmt.Sprintf("  %s (user %d)", name, m.userID))
	} else {
		header += SubtitleStyle.Render(fmt.Sprintf("  user %d", m.userID))
	}
	if m.session.Loading() {
		header += "  " + m.spinner.View()
	}
	b.WriteString(header + "\n\n")

	if m.State == StateResults {
		b.WriteString(m.resultsView())
	} else {
		b.WriteString(m.listView())
	}

	if m.State == StateSearchInput || m.State == StateRatingInput || m.State == StateAddInput || m.State == StateFilterInput {
		b.WriteString("\n" + m.input.View() + "\n")
	}

	if errMsg := m.session.Error(); errMsg != "" {
		b.WriteString("\n" + ErrorStyle.Render(errMsg) + "\n")
	} else if m.StatusMsg != "" {
		b.WriteString("\n" + DimStyle.Render(m.StatusMsg) + "\n")
	}

	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.help.FullHelpView(Keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(Keys.ShortHelp()))
	}
	return b.String()
}

func (m Model) listView() string {
	if len(m.Items) == 0 {
		return DimStyle.Render("Nothing here yet. Press / to search or a to add by id.") + "\n"
	}

	var b strings.Builder
	if m.Filter != "" {
		b.WriteString(DimStyle.Render(fmt.Sprintf("filter %q: %d of %d (esc clears)", m.Filter, len(m.Visible), len(m.Items))) + "\n")
	}
	for i, it := range m.Visible {
		fav := " "
		if it.IsFavorite {
			fav = FavoriteStyle.Render("★")
		}
		eps := strconv.Itoa(it.EpisodesWatched)
		if it.TotalEpisodes != nil {
			eps = fmt.Sprintf("%d/%d", it.EpisodesWatched, *it.TotalEpisodes)
		}
		rating := "-"
		if it.Rating != nil {
			rating = strconv.FormatFloat(*it.Rating, 'f', -1, 64)
		}

		row := fmt.Sprintf("%s %-36s %s %7s eps  %4s",
			fav, truncate(it.DisplayTitle(), 36),
			statusStyle(it.Status).Render(fmt.Sprintf("%-13s", it.Status)),
			eps, rating)

		switch {
		case it.Pending:
			b.WriteString(PendingStyle.Render(row+"  saving…") + "\n")
		case i == m.Cursor:
			b.WriteString(SelectedStyle.Render(row) + "\n")
		default:
			b.WriteString(RowStyle.Render(row) + "\n")
		}
	}
	return b.String()
}

func (m Model) resultsView() string {
	var b strings.Builder
	b.WriteString(SubtitleStyle.Render("enter saves to your collection, esc goes back") + "\n\n")
	for i, a := range m.Results {
		line := fmt.Sprintf("%-7d %s", a.AnimeID, truncate(a.Title, 50))
		if a.Episodes != nil {
			line += fmt.Sprintf("  (%d eps)", *a.Episodes)
		}
		if i == m.ResultAt {
			b.WriteString(SelectedStyle.Render(line) + "\n")
		} else {
			b.WriteString(RowStyle.Render(line) + "\n")
		}
	}
	return PanelStyle.Render(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
