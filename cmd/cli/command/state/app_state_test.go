package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	s := New("http://localhost:8080")
	assert.False(t, s.LoggedIn())

	s.SetSession("tok", 4, "mika")
	assert.True(t, s.LoggedIn())
	assert.Equal(t, "tok", s.Token())
	assert.Equal(t, int64(4), s.UserID())
	assert.Equal(t, "mika", s.Username())
	assert.Equal(t, "http://localhost:8080", s.APIURL())

	s.ClearSession()
	assert.False(t, s.LoggedIn())
	assert.Zero(t, s.UserID())
}

func TestLoadingCounter(t *testing.T) {
	s := New("")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s.BeginRequest()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, s.Loading())
			s.EndRequest()
		}()
	}
	wg.Wait()
	assert.False(t, s.Loading())

	s.EndRequest()
	assert.False(t, s.Loading())
	s.BeginRequest()
	assert.True(t, s.Loading())
}

func TestErrorMessage(t *testing.T) {
	s := New("")
	s.SetError("first")
	s.SetError("second")
	assert.Equal(t, "second", s.Error())
	s.ClearError()
	assert.Empty(t, s.Error())
}
