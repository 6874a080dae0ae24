package progression

import (
	"fmt"

	"github.com/p-n-ai/ledger/internal/content"
)

// Engine holds one learner's position in a shared tree. It is not safe for
// concurrent use; callers serialise access per session.
type Engine struct {
	tree *content.Tree
	pos  Position
}

// New creates an engine at the first node of tree.
func New(tree *content.Tree) *Engine {
	return &Engine{tree: tree}
}

// Restore creates an engine at pos. Positions that do not address a node
// simply have no current node.
func Restore(tree *content.Tree, pos Position) *Engine {
	return &Engine{tree: tree, pos: pos}
}

// Tree returns the course the engine walks.
func (e *Engine) Tree() *content.Tree {
	return e.tree
}

// Position returns the current position.
func (e *Engine) Position() Position {
	return e.pos
}

// Current returns the node at the current position, or false when the
// tree is empty or the course is complete.
func (e *Engine) Current() (content.Node, bool) {
	return e.tree.NodeAt(e.pos.Chapter, e.pos.Zone, e.pos.Node)
}

// Complete reports whether there is no node left to work on.
func (e *Engine) Complete() bool {
	_, ok := e.Current()
	return !ok
}

// Advance moves to the next node: within the zone first, then to the next
// zone, then to the next chapter. It returns false once there is nowhere
// left to go, after which Current reports no node.
//
// The position never moves backwards.
func (e *Engine) Advance() bool {
	ch, ok := e.tree.Chapter(e.pos.Chapter)
	if !ok {
		return false
	}
	if zone, ok := e.tree.Zone(e.pos.Chapter, e.pos.Zone); ok && e.pos.Node+1 < len(zone.Nodes) {
		e.pos.Node++
		return true
	}
	if e.pos.Zone+1 < len(ch.Zones) {
		e.pos.Zone++
		e.pos.Node = 0
		return true
	}
	if e.pos.Chapter+1 < e.tree.Len() {
		e.pos.Chapter++
		e.pos.Zone = 0
		e.pos.Node = 0
		return true
	}

	// Park one past the last node so nothing is current. Repeated calls
	// leave the position where it is.
	if zone, ok := e.tree.Zone(e.pos.Chapter, e.pos.Zone); ok {
		e.pos.Node = max(e.pos.Node, len(zone.Nodes))
	}
	return false
}

// Finished reports whether no node exists at or after the current
// position.
func (e *Engine) Finished() bool {
	finished := true
	e.tree.Walk(func(c, z, n int, _ content.Node) bool {
		if (Position{c, z, n}).Compare(e.pos) >= 0 {
			finished = false
			return false
		}
		return true
	})
	return finished
}

// Label describes the current position for display.
func (e *Engine) Label() string {
	if e.tree.Len() == 0 {
		return "No course loaded"
	}
	ch, _ := e.tree.Chapter(e.pos.Chapter)
	zone, ok := e.tree.Zone(e.pos.Chapter, e.pos.Zone)
	switch {
	case ok && e.pos.Node < len(zone.Nodes):
		return fmt.Sprintf("%s - %s (%d/%d)", ch.Title, zone.Title, e.pos.Node+1, len(zone.Nodes))
	case e.Finished():
		return "Course complete"
	default:
		return fmt.Sprintf("%s - %s (empty)", ch.Title, zone.Title)
	}
}

// StatusOf classifies the node at p relative to the current position.
func (e *Engine) StatusOf(p Position) Status {
	switch p.Compare(e.pos) {
	case -1:
		return StatusCompleted
	case 0:
		return StatusUnlocked
	default:
		return StatusLocked
	}
}
