// Package store fetches raw deployment documents for an environment from the
// backing document index.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"github.com/onetwotrip/punk/internal/record"
)

// Fetcher returns zero or more raw documents recorded for an environment.
// A failed fetch is non-fatal to callers: they log it and proceed as if no
// documents were returned.
type Fetcher interface {
	FetchEnvironment(ctx context.Context, env string) ([]record.RawDocument, error)
}

const fetchLimit = 50

// Meili implements Fetcher via Meilisearch.
type Meili struct {
	client      meili.ServiceManager
	index       string
	sourceField string
	logRequests bool
	healthy     atomic.Bool
	done        chan struct{}
}

// NewMeili creates the document index client and configures the deployment
// index. The index stays usable even if the initial connection fails; a
// background monitor flips Healthy once the index recovers.
func NewMeili(url, apiKey, index, sourceField string, logRequests bool) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client:      client,
		index:       index,
		sourceField: sourceField,
		logRequests: logRequests,
		done:        make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("store: deployment index unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("store: create index %s (may already exist): %v", m.index, err)
	}

	filterable := []interface{}{"environment"}
	if _, err := m.client.Index(m.index).UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("store: update filterable attrs for %s: %v", m.index, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("store: deployment index recovered, reconfiguring")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether the deployment index is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// FetchEnvironment looks up all documents recorded for env by exact match on
// the environment identifier and returns their raw source structures.
func (m *Meili) FetchEnvironment(ctx context.Context, env string) ([]record.RawDocument, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("deployment index unhealthy")
	}
	if m.logRequests {
		log.Printf("store: lookup environment %s", env)
	}

	resp, err := m.client.Index(m.index).SearchWithContext(ctx, "", &meili.SearchRequest{
		Filter: []string{fmt.Sprintf("environment = %q", env)},
		Limit:  fetchLimit,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("search deployment index: %w", err)
	}

	var docs []record.RawDocument
	for _, hit := range resp.Hits {
		raw, ok := hit[m.sourceField]
		if !ok {
			continue
		}
		var doc record.RawDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Printf("store: unreadable %s in document for %s: %v", m.sourceField, env, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
