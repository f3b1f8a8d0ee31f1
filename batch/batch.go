/*
Package batch converts and catalogues whole directory trees of textures.
*/
package batch

import (
	"log"
	"sync"

	"github.com/bodgit/blp/catalog"
)

const defaultWorkers = 10

// Converter runs conversions over directory trees using a pool of workers.
type Converter struct {
	catalog *catalog.Catalog
	logger  *log.Logger
	workers int
}

// New returns a Converter. The catalog is only needed by Scan and may be
// nil otherwise. If workers is less than one a default is used.
func New(c *catalog.Catalog, logger *log.Logger, workers int) *Converter {
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Converter{
		catalog: c,
		logger:  logger,
		workers: workers,
	}
}

// Summary counts the outcome of a run.
type Summary struct {
	Converted int
	Failed    int
}

type tally struct {
	mu sync.Mutex
	s  Summary
}

func (t *tally) add(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.s.Failed++
	} else {
		t.s.Converted++
	}
}

func (t *tally) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
