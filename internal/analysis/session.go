package analysis

import (
	"sync"

	"github.com/hyperjump/autoscan/internal/models"
)

// State is a copy of a session's contents.
type State struct {
	Transcript string
	Items      []models.ActionItem
	ReportID   string
}

// Session holds the transcript and the current items between steps of a
// run (extract, analyze, edit, upload). Callers read and write it only
// through Snapshot and the setters.
type Session struct {
	mu    sync.Mutex
	state State
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Snapshot returns a copy that later writes do not affect.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Items = append([]models.ActionItem(nil), s.state.Items...)
	return st
}

// SetTranscript replaces the transcript and clears items from an earlier run.
func (s *Session) SetTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Transcript: text}
}

// SetItems replaces the current items.
func (s *Session) SetItems(items []models.ActionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Items = append([]models.ActionItem(nil), items...)
}

// Apply stores the items of a finished analysis.
func (s *Session) Apply(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Items = append([]models.ActionItem(nil), r.Items...)
	s.state.ReportID = r.ID
}
