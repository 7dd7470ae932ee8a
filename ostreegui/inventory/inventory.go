// Package inventory reads named target hosts from an INI file.
//
//	[workstations]
//	desk   = desk.lan
//	laptop = 192.168.1.20
//
//	[lab]
//	kiosk = kiosk.lab.example.com:2222
//
// Sections are groups, keys are aliases and values are hostnames.
package inventory

import (
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

type Entry struct {
	Group    string
	Alias    string
	Hostname string
}

type Inventory struct {
	sync.RWMutex
	groups  map[string][]Entry
	aliases map[string]Entry
}

func New() *Inventory {
	return &Inventory{
		groups:  make(map[string][]Entry),
		aliases: make(map[string]Entry),
	}
}

// Load reads an inventory file. An empty path yields an empty inventory.
func Load(path string) (*Inventory, error) {
	inv := New()
	if path == "" {
		return inv, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load inventory %s: %w", path, err)
	}

	for _, section := range cfg.Sections() {
		group := section.Name()
		for _, key := range section.Keys() {
			inv.Add(Entry{Group: group, Alias: key.Name(), Hostname: key.String()})
		}
	}

	log.WithFields(log.Fields{"path": path, "hosts": len(inv.aliases)}).Debug("Loaded inventory")
	return inv, nil
}

// Add records e. A later entry with the same alias wins.
func (inv *Inventory) Add(e Entry) {
	inv.Lock()
	defer inv.Unlock()
	if prev, ok := inv.aliases[e.Alias]; ok {
		log.WithFields(log.Fields{"alias": e.Alias, "previous": prev.Hostname, "hostname": e.Hostname}).Warn("Duplicate inventory alias")
	}
	inv.groups[e.Group] = append(inv.groups[e.Group], e)
	inv.aliases[e.Alias] = e
}

// Resolve maps an alias to its hostname. Anything that is not a known alias
// is returned unchanged, so plain hostnames work too.
func (inv *Inventory) Resolve(name string) string {
	if inv == nil {
		return name
	}
	inv.RLock()
	defer inv.RUnlock()
	if e, ok := inv.aliases[name]; ok {
		return e.Hostname
	}
	return name
}

// HasAlias checks if alias is defined in any group.
func (inv *Inventory) HasAlias(alias string) bool {
	inv.RLock()
	defer inv.RUnlock()
	_, ok := inv.aliases[alias]
	return ok
}

// Groups returns the non-empty group names in sorted order.
func (inv *Inventory) Groups() []string {
	inv.RLock()
	defer inv.RUnlock()
	var names []string
	for name, entries := range inv.groups {
		if len(entries) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Hosts returns the entries of group in file order.
func (inv *Inventory) Hosts(group string) []Entry {
	inv.RLock()
	defer inv.RUnlock()
	return slices.Clone(inv.groups[group])
}
