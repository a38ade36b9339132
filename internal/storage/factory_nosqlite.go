//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("sqlite store %s: backend not compiled in; rebuild agentevoctl with -tags sqlite", path)
}
