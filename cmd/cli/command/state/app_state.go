package state

import "sync"

// AppState is the session shared by the commands, the collection cache and
// the TUI. One instance per process; everything goes through the accessors.
type AppState struct {
	mu sync.RWMutex

	apiURL   string
	token    string
	userID   int64
	username string

	inFlight  int
	lastError string
}

func New(apiURL string) *AppState {
	return &AppState{apiURL: apiURL}
}

func (s *AppState) APIURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiURL
}

func (s *AppState) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *AppState) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *AppState) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// SetSession records a successful login.
func (s *AppState) SetSession(token string, userID int64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID = userID
	s.username = username
}

func (s *AppState) ClearSession() {
	s.SetSession("", 0, "")
}

func (s *AppState) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// BeginRequest and EndRequest bracket every network call; Loading reports
// whether any is outstanding.
func (s *AppState) BeginRequest() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *AppState) EndRequest() {
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.mu.Unlock()
}

func (s *AppState) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight > 0
}

// SetError replaces the message shown to the user.
func (s *AppState) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *AppState) ClearError() {
	s.SetError("")
}

func (s *AppState) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
