// Package idgen generates Snowflake IDs for jobs, steps and notes.
package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	initErr error
	once    sync.Once
)

// Init configures the process-wide snowflake node. Must be called once
// before New is used; subsequent calls are no-ops.
func Init(nodeID int64) error {
	once.Do(func() {
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			initErr = fmt.Errorf("creating snowflake node: %w", err)
			return
		}
		node = n
	})
	return initErr
}

// New generates a new, time-sortable 64-bit ID.
func New() int64 {
	return node.Generate().Int64()
}

// NewString generates a new ID formatted as a base10 string, convenient for
// branch names and external identifiers.
func NewString() string {
	return node.Generate().String()
}
