// Package id generates the int64 identifiers used for every persisted
// entity: users, workspaces, snapshots, experiments, knowledge items.
// Snowflake ids are time-ordered, so ORDER BY id doubles as creation
// order in list queries.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the generator node. Call once at startup, before any
// store creates a row; the node ID distinguishes server instances.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns the next unique id.
func New() int64 {
	return node.Generate().Int64()
}
