package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
)

// ProgramSurface forwards published state into a running tea.Program as
// messages, so the Model only changes on the program's own goroutine.
type ProgramSurface struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

// Attach starts delivering to p. Messages published before Attach are
// dropped.
func (s *ProgramSurface) Attach(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = p.Send
}

func (s *ProgramSurface) deliver(msg tea.Msg) {
	s.mu.RLock()
	send := s.send
	s.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

func (s *ProgramSurface) PublishPackages(d pm.Deployment) {
	s.deliver(packagesMsg{deployment: d})
}

func (s *ProgramSurface) PublishError(text string) {
	s.deliver(errorMsg{text: text})
}

func (s *ProgramSurface) PublishBusy(busy bool) {
	s.deliver(busyMsg{busy: busy})
}

func (s *ProgramSurface) PublishSearch(query string, results []string) {
	s.deliver(searchResultsMsg{query: query, results: results})
}
