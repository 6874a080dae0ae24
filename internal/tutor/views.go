package tutor

import (
	"fmt"
	"math"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/progression"
)

// CompletionMessage is shown once the course is finished.
const CompletionMessage = "You have reached the Summit."

// XPPerLevel is how much XP each level takes.
const XPPerLevel = 100

// XPMilestones are the XP totals that earn a badge.
var XPMilestones = []int{300, 600}

// NodeView is the learner-facing rendering of the current node. Which
// fields are set depends on Type.
type NodeView struct {
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Content     string   `json:"content,omitempty"`
	Question    string   `json:"question,omitempty"`
	Options     []string `json:"options,omitempty"`
	Description string   `json:"description,omitempty"`
	Runtime     string   `json:"runtime,omitempty"`
	Starter     string   `json:"starter,omitempty"`
	Hints       []string `json:"hints,omitempty"`
	XP          int      `json:"xp,omitempty"`
	Progress    string   `json:"progress"`
}

// MapView is the whole course with each node's status.
type MapView struct {
	Chapters       []MapChapter `json:"chapters"`
	CurrentChapter int          `json:"current_chapter_idx"`
	CurrentZone    int          `json:"current_zone_idx"`
	CurrentNode    int          `json:"current_node_idx"`
	Complete       bool         `json:"complete"`
	Completed      int          `json:"completed"`
	Total          int          `json:"total"`
	XP             int          `json:"xp"`
	Level          int          `json:"level"`
	Badges         []string     `json:"badges"`
	Progress       string       `json:"progress"`
}

// MapChapter carries its own completion so the map can show per-chapter
// progress bars.
type MapChapter struct {
	Title string    `json:"title"`
	Zones []MapZone `json:"zones"`
	Done  int       `json:"done"`
	Total int       `json:"total"`
	Pct   int       `json:"pct"`
}

type MapZone struct {
	Title string    `json:"title"`
	Nodes []MapNode `json:"nodes"`
}

type MapNode struct {
	Title  string             `json:"title"`
	Type   string             `json:"type"`
	Status progression.Status `json:"status"`
	XP     int                `json:"xp"`
}

// SubmitRequest carries a quiz answer or a script. Code is accepted as an
// alias for Script.
type SubmitRequest struct {
	QuizIndex *int    `json:"quiz_index,omitempty"`
	Script    *string `json:"script,omitempty"`
	Code      *string `json:"code,omitempty"`
}

func (r SubmitRequest) submission() content.Submission {
	script := r.Script
	if script == nil {
		script = r.Code
	}
	return content.Submission{QuizIndex: r.QuizIndex, Script: script}
}

// SubmitResponse reports a graded submission.
type SubmitResponse struct {
	Passed    bool    `json:"passed"`
	Message   string  `json:"message"`
	Stdout    *string `json:"stdout,omitempty"`
	Error     string  `json:"error,omitempty"`
	Advanced  bool    `json:"advanced"`
	Complete  bool    `json:"complete"`
	XPAwarded int     `json:"xp_awarded"`
	Progress  string  `json:"progress"`
}

// SessionView describes a session.
type SessionView struct {
	ID       string   `json:"id"`
	XP       int      `json:"xp"`
	Level    int      `json:"level"`
	Attempts int      `json:"attempts"`
	Badges   []string `json:"badges"`
	Progress string   `json:"progress"`
}

// Level converts XP to a level starting at 1.
func Level(xp int) int {
	return xp/XPPerLevel + 1
}

// nodeView renders the current node. A challenge shows the learner's last
// submitted script in place of its starter.
func nodeView(e *progression.Engine, scripts map[string]string) NodeView {
	node, ok := e.Current()
	if !ok {
		return NodeView{
			Title:    "Course Complete",
			Type:     "complete",
			Content:  CompletionMessage,
			Progress: e.Label(),
		}
	}

	meta := node.Info()
	p := node.Prompt()
	v := NodeView{
		Title:       meta.Title,
		Type:        string(node.Kind()),
		Content:     p.Content,
		Question:    p.Question,
		Options:     p.Options,
		Description: p.Description,
		Runtime:     string(p.Runtime),
		Starter:     p.Starter,
		Hints:       p.Hints,
		XP:          meta.XP,
		Progress:    e.Label(),
	}
	if saved, ok := scripts[meta.Title]; ok && node.Kind() == content.KindChallenge {
		v.Starter = saved
	}
	return v
}

func mapView(e *progression.Engine, xp int) MapView {
	tree := e.Tree()
	pos := e.Position()
	v := MapView{
		Chapters:       make([]MapChapter, 0, tree.Len()),
		CurrentChapter: pos.Chapter,
		CurrentZone:    pos.Zone,
		CurrentNode:    pos.Node,
		Complete:       e.Complete(),
		Total:          tree.Count(),
		XP:             xp,
		Level:          Level(xp),
		Progress:       e.Label(),
	}

	for ci, ch := range tree.Chapters() {
		mc := MapChapter{Title: ch.Title, Zones: make([]MapZone, 0, len(ch.Zones))}
		for zi, zone := range ch.Zones {
			mz := MapZone{Title: zone.Title, Nodes: make([]MapNode, 0, len(zone.Nodes))}
			for ni, node := range zone.Nodes {
				status := e.StatusOf(progression.Position{Chapter: ci, Zone: zi, Node: ni})
				mc.Total++
				if status == progression.StatusCompleted {
					mc.Done++
					v.Completed++
				}
				mz.Nodes = append(mz.Nodes, MapNode{
					Title:  node.Info().Title,
					Type:   string(node.Kind()),
					Status: status,
					XP:     node.Info().XP,
				})
			}
			mc.Zones = append(mc.Zones, mz)
		}
		if mc.Total > 0 {
			mc.Pct = int(math.Round(float64(mc.Done) / float64(mc.Total) * 100))
		}
		v.Chapters = append(v.Chapters, mc)
	}
	v.Badges = badges(v.Chapters, xp)
	return v
}

// StatusOf returns the status recorded for the node at p, or "" when p is
// outside the course.
func (v MapView) StatusOf(p progression.Position) progression.Status {
	if p.Chapter < 0 || p.Chapter >= len(v.Chapters) {
		return ""
	}
	zones := v.Chapters[p.Chapter].Zones
	if p.Zone < 0 || p.Zone >= len(zones) {
		return ""
	}
	nodes := zones[p.Zone].Nodes
	if p.Node < 0 || p.Node >= len(nodes) {
		return ""
	}
	return nodes[p.Node].Status
}

// Snapshot is one session read under a single lock.
type Snapshot struct {
	Map     MapView
	Scripts map[string]string
}

// badges lists a badge per cleared chapter followed by one per XP
// milestone reached.
func badges(chapters []MapChapter, xp int) []string {
	out := []string{}
	for _, ch := range chapters {
		if ch.Total > 0 && ch.Done == ch.Total {
			out = append(out, ch.Title+" Cleared")
		}
	}
	for _, m := range XPMilestones {
		if xp >= m {
			out = append(out, fmt.Sprintf("XP Milestone %d+", m))
		}
	}
	return out
}
