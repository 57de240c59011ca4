// Package txnid generates monotone, per-session Matrix transaction IDs of
// the documented "{clientName}-{counter}-{nowMs}" shape (§6 wire shapes).
package txnid

import (
	"fmt"
	"sync/atomic"
)

// Generator produces transaction IDs scoped to one client session.
type Generator struct {
	clientName string
	counter    atomic.Int64
	now        func() int64
}

// New returns a Generator for clientName. now supplies the millisecond
// epoch timestamp; tests may inject a deterministic clock.
func New(clientName string, now func() int64) *Generator {
	return &Generator{clientName: clientName, now: now}
}

// Next returns the next transaction ID.
func (g *Generator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s-%d-%d", g.clientName, n, g.now())
}
