// Package runid generates the unique identifier tagging each simulation
// run, used as the primary key when a run's statistics are persisted.
package runid

import "github.com/rs/xid"

// New returns a fresh run identifier.
func New() string {
	return xid.New().String()
}
