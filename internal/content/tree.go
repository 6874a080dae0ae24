package content

// Zone is an ordered group of nodes.
type Zone struct {
	Title string
	Nodes []Node
}

// Chapter is an ordered group of zones.
type Chapter struct {
	Title string
	Zones []Zone
}

// Tree is the whole course. It is never modified after construction and
// may be shared by any number of sessions.
type Tree struct {
	chapters []Chapter
	count    int
}

// NewTree builds a tree from chapters in authored order. Empty chapters
// and zones are allowed.
func NewTree(chapters ...Chapter) *Tree {
	t := &Tree{chapters: chapters}
	for _, c := range chapters {
		for _, z := range c.Zones {
			t.count += len(z.Nodes)
		}
	}
	return t
}

// Chapters returns the chapters. Callers must not modify the result.
func (t *Tree) Chapters() []Chapter {
	if t == nil {
		return nil
	}
	return t.chapters
}

// Len returns the number of chapters.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.chapters)
}

// Count returns the total number of nodes.
func (t *Tree) Count() int {
	if t == nil {
		return 0
	}
	return t.count
}

// Chapter returns chapter c.
func (t *Tree) Chapter(c int) (Chapter, bool) {
	if c < 0 || c >= t.Len() {
		return Chapter{}, false
	}
	return t.chapters[c], true
}

// Zone returns zone z of chapter c.
func (t *Tree) Zone(c, z int) (Zone, bool) {
	ch, ok := t.Chapter(c)
	if !ok || z < 0 || z >= len(ch.Zones) {
		return Zone{}, false
	}
	return ch.Zones[z], true
}

// NodeAt returns the node at (c, z, n), or false when that address does
// not exist.
func (t *Tree) NodeAt(c, z, n int) (Node, bool) {
	zone, ok := t.Zone(c, z)
	if !ok || n < 0 || n >= len(zone.Nodes) {
		return nil, false
	}
	return zone.Nodes[n], true
}

// Walk calls fn for every node in authored order until fn returns false.
func (t *Tree) Walk(fn func(c, z, n int, node Node) bool) {
	for ci, ch := range t.Chapters() {
		for zi, zone := range ch.Zones {
			for ni, node := range zone.Nodes {
				if !fn(ci, zi, ni, node) {
					return
				}
			}
		}
	}
}

// Find returns the address of the first node titled title.
func (t *Tree) Find(title string) (c, z, n int, ok bool) {
	t.Walk(func(ci, zi, ni int, node Node) bool {
		if node.Info().Title == title {
			c, z, n, ok = ci, zi, ni, true
			return false
		}
		return true
	})
	return c, z, n, ok
}
