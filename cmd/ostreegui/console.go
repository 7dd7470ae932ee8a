package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
)

// consoleSurface prints published state for the one-shot commands.
type consoleSurface struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	failed bool
}

func newConsoleSurface(out, errOut io.Writer) *consoleSurface {
	return &consoleSurface{out: out, errOut: errOut}
}

func (c *consoleSurface) PublishPackages(d pm.Deployment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.OSName != "" || d.Version != "" {
		fmt.Fprintf(c.out, "Deployment: %s\n", strings.TrimSpace(d.OSName+" "+d.Version))
	}
	pkgs := d.SortedPackages()
	if len(pkgs) == 0 {
		fmt.Fprintln(c.out, "No layered packages")
		return
	}
	fmt.Fprintln(c.out, "Layered packages:")
	for _, name := range pkgs {
		fmt.Fprintln(c.out, name)
	}
}

func (c *consoleSurface) PublishError(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
	fmt.Fprint(c.errOut, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(c.errOut)
	}
}

func (c *consoleSurface) PublishBusy(busy bool) {
	log.WithField("busy", busy).Debug("Package tool state changed")
}

func (c *consoleSurface) PublishSearch(query string, results []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range results {
		fmt.Fprintln(c.out, name)
	}
}

// Failed reports whether any error was published.
func (c *consoleSurface) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}
