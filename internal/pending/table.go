package pending

import "fmt"

// Table maps a request id to its parked Continuation. Exclusively
// owned by the Request Processor's actor goroutine — not safe for
// concurrent use.
type Table struct {
	entries map[string]Continuation
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[string]Continuation)}
}

// Park stores c under its request id. It is an error to park two
// continuations under the same request id; callers generate fresh
// request ids per suspension, so this only fires on a caller bug.
func (t *Table) Park(c Continuation) error {
	id := c.kindRequestID()
	if _, exists := t.entries[id]; exists {
		return fmt.Errorf("pending request %q already parked", id)
	}
	t.entries[id] = c
	return nil
}

// Take removes and returns the continuation parked under id, if any.
func (t *Table) Take(id string) (Continuation, bool) {
	c, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return c, ok
}

// Len reports how many requests are currently parked.
func (t *Table) Len() int {
	return len(t.entries)
}
