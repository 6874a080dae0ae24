// Package progression tracks where a learner is in the course and moves
// them forward one node at a time.
package progression

import "fmt"

// Position addresses a node as (chapter, zone, node) indices.
type Position struct {
	Chapter int `json:"chapter"`
	Zone    int `json:"zone"`
	Node    int `json:"node"`
}

// Compare orders positions lexicographically. It returns -1, 0 or 1.
func (p Position) Compare(o Position) int {
	switch {
	case p.Chapter != o.Chapter:
		return sign(p.Chapter - o.Chapter)
	case p.Zone != o.Zone:
		return sign(p.Zone - o.Zone)
	default:
		return sign(p.Node - o.Node)
	}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.Chapter, p.Zone, p.Node)
}

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// Status is a node's state relative to the learner's position.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusUnlocked  Status = "unlocked"
	StatusLocked    Status = "locked"
)
