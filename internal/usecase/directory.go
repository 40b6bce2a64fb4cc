package usecase

import (
	"sync"

	"Prospector/internal/domain"
)

// Directory is the in-memory index of sessions and discovered businesses
// backing the operator dashboard.
type Directory struct {
	mu         sync.RWMutex
	sessions   map[string]domain.Session
	businesses map[string]domain.Business
	order      []string
}

// NewDirectory builds an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		sessions:   map[string]domain.Session{},
		businesses: map[string]domain.Business{},
	}
}

// AddSession registers a session and the businesses it owns.
func (d *Directory) AddSession(session domain.Session, businesses []domain.Business) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[session.ID] = session
	for _, b := range businesses {
		d.put(b)
	}
}

// Seed registers businesses restored from cached bundles. Known businesses
// are left untouched.
func (d *Directory) Seed(bundles []domain.Bundle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range bundles {
		if _, ok := d.businesses[b.Business.ID]; !ok && b.Business.ID != "" {
			d.put(b.Business)
		}
	}
}

// Enrich merges data into the current entry of a known business and returns
// the merged business. Concurrent enrichments of one business never drop each
// other's fields.
func (d *Directory) Enrich(id string, data domain.EnrichedData) (domain.Business, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.businesses[id]
	if !ok {
		return domain.Business{}, false
	}
	b.ApplyEnrichment(data)
	d.businesses[id] = b
	return b, true
}

// Business looks a business up by id.
func (d *Directory) Business(id string) (domain.Business, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.businesses[id]
	return b, ok
}

// Session looks a session up by id.
func (d *Directory) Session(id string) (domain.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	return s, ok
}

// Businesses lists businesses in discovery order. An empty sessionID lists
// all of them.
func (d *Directory) Businesses(sessionID string) []domain.Business {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Business, 0, len(d.order))
	for _, id := range d.order {
		b := d.businesses[id]
		if sessionID == "" || b.SessionID == sessionID {
			out = append(out, b)
		}
	}
	return out
}

func (d *Directory) put(b domain.Business) {
	if _, ok := d.businesses[b.ID]; !ok {
		d.order = append(d.order, b.ID)
	}
	d.businesses[b.ID] = b
}
