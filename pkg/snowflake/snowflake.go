package snowflake

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// Node wraps snowflake.Node to abstract the dependency. Notification and
// result rows get their IDs here so rows created on different service
// instances never collide.
type Node struct {
	*snowflake.Node
}

func NewNode() (*Node, error) {
	// Node ID is fixed at 1 for now; with multiple service instances it
	// should come from config to stay unique.
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Node{node}, nil
}

// GenerateID returns a new snowflake ID as int64
func (n *Node) GenerateID() int64 {
	return n.Generate().Int64()
}

// ParseID parses a string ID into an int64
func ParseID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}
