package tui

import pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"

type packagesMsg struct {
	deployment pm.Deployment
}

type errorMsg struct {
	text string
}

type busyMsg struct {
	busy bool
}

type searchResultsMsg struct {
	query   string
	results []string
}
