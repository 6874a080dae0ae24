package content

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/ledger/internal/sandbox"
)

//go:embed course/*.yaml
var courseFS embed.FS

type chapterDoc struct {
	Order int       `yaml:"order"`
	Title string    `yaml:"title"`
	Zones []zoneDoc `yaml:"zones"`
}

type zoneDoc struct {
	Title string    `yaml:"title"`
	Nodes []nodeDoc `yaml:"nodes"`
}

type nodeDoc struct {
	Type         Kind       `yaml:"type"`
	Title        string     `yaml:"title"`
	XP           *int       `yaml:"xp"`
	Content      string     `yaml:"content"`
	Question     string     `yaml:"question"`
	Options      []string   `yaml:"options"`
	CorrectIndex int        `yaml:"correct_index"`
	Description  string     `yaml:"description"`
	Runtime      string     `yaml:"runtime"`
	Starter      string     `yaml:"starter"`
	Hints        []string   `yaml:"hints"`
	Verify       *verifyDoc `yaml:"verify"`
}

type verifyDoc struct {
	Builtin   string       `yaml:"builtin"`
	Bindings  []bindingDoc `yaml:"bindings"`
	Stdout    *stdoutDoc   `yaml:"stdout"`
	Predicate string       `yaml:"predicate"`
}

type bindingDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Equals any    `yaml:"equals"`
}

type stdoutDoc struct {
	Equals   *string  `yaml:"equals"`
	Contains []string `yaml:"contains"`
}

type loadedChapter struct {
	path    string
	order   int
	chapter Chapter
}

// Default loads the course compiled into the binary.
func Default() (*Tree, error) {
	sub, err := fs.Sub(courseFS, "course")
	if err != nil {
		return nil, fmt.Errorf("opening embedded course: %w", err)
	}
	return Load(sub)
}

// LoadDir loads every chapter document under dir.
func LoadDir(dir string) (*Tree, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("loading course: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("loading course: %s is not a directory", dir)
	}
	return Load(os.DirFS(dir))
}

// Load reads every *.yaml and *.yml file in fsys as one chapter, validates
// it and orders chapters by their order field, then by path. All invalid
// documents are reported together.
func Load(fsys fs.FS) (*Tree, error) {
	var (
		loaded []loadedChapter
		errs   []error
	)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch path.Ext(p) {
		case ".yaml", ".yml":
		default:
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		ch, order, err := parseChapter(p, data)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		loaded = append(loaded, loadedChapter{path: p, order: order, chapter: ch})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading course: %w", err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("loading course: %w", errors.Join(errs...))
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].order != loaded[j].order {
			return loaded[i].order < loaded[j].order
		}
		return loaded[i].path < loaded[j].path
	})

	chapters := make([]Chapter, len(loaded))
	for i, lc := range loaded {
		chapters[i] = lc.chapter
	}
	tree := NewTree(chapters...)
	slog.Info("course loaded", "chapters", tree.Len(), "nodes", tree.Count())
	return tree, nil
}

// ParseChapter validates and decodes a single chapter document.
func ParseChapter(name string, data []byte) (Chapter, error) {
	ch, _, err := parseChapter(name, data)
	return ch, err
}

func parseChapter(name string, data []byte) (Chapter, int, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Chapter{}, 0, fmt.Errorf("%s: parsing yaml: %w", name, err)
	}
	if err := validateChapter(name, raw); err != nil {
		return Chapter{}, 0, err
	}

	var doc chapterDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Chapter{}, 0, fmt.Errorf("%s: decoding chapter: %w", name, err)
	}

	ch := Chapter{Title: doc.Title, Zones: make([]Zone, 0, len(doc.Zones))}
	for zi, zd := range doc.Zones {
		zone := Zone{Title: zd.Title, Nodes: make([]Node, 0, len(zd.Nodes))}
		for ni, nd := range zd.Nodes {
			node, err := nd.build()
			if err != nil {
				return Chapter{}, 0, fmt.Errorf("%s: zone %d node %d (%q): %w", name, zi, ni, nd.Title, err)
			}
			zone.Nodes = append(zone.Nodes, node)
		}
		ch.Zones = append(ch.Zones, zone)
	}
	return ch, doc.Order, nil
}

func (d nodeDoc) build() (Node, error) {
	meta := Meta{Title: d.Title}
	switch d.Type {
	case KindLesson:
		meta.XP = d.xp(DefaultLessonXP)
		return &Lesson{Meta: meta, Content: d.Content}, nil

	case KindQuiz:
		if d.CorrectIndex >= len(d.Options) {
			return nil, fmt.Errorf("correct_index %d out of range for %d options", d.CorrectIndex, len(d.Options))
		}
		meta.XP = d.xp(DefaultQuizXP)
		return &Quiz{Meta: meta, Question: d.Question, Options: d.Options, CorrectIndex: d.CorrectIndex}, nil

	case KindChallenge:
		rt := sandbox.Runtime(d.Runtime)
		if rt == "" {
			rt = sandbox.RuntimeStarlark
		}
		if !rt.Valid() {
			return nil, fmt.Errorf("unknown runtime %q", d.Runtime)
		}
		rule, err := d.Verify.rule()
		if err != nil {
			return nil, err
		}
		meta.XP = d.xp(DefaultChallengeXP)
		return &Challenge{
			Meta:        meta,
			Description: d.Description,
			Runtime:     rt,
			Starter:     d.Starter,
			Hints:       d.Hints,
			Rule:        rule,
		}, nil
	}
	return nil, fmt.Errorf("unknown node type %q", d.Type)
}

func (d nodeDoc) xp(def int) int {
	if d.XP == nil {
		return def
	}
	return *d.XP
}

func (v *verifyDoc) rule() (Rule, error) {
	if v == nil {
		return nil, errors.New("challenge has no verify block")
	}

	var rules AllOf
	if v.Builtin != "" {
		r, ok := Builtin(v.Builtin)
		if !ok {
			return nil, fmt.Errorf("unknown builtin rule %q (have %s)", v.Builtin, strings.Join(BuiltinNames(), ", "))
		}
		rules = append(rules, r)
	}
	for _, b := range v.Bindings {
		rules = append(rules, BindingRule{Name: b.Name, Type: b.Type, Equals: b.Equals})
	}
	if v.Stdout != nil {
		rules = append(rules, StdoutRule{Equals: v.Stdout.Equals, Contains: v.Stdout.Contains})
	}
	if v.Predicate != "" {
		rules = append(rules, PredicateRule{Source: v.Predicate})
	}

	switch len(rules) {
	case 0:
		return nil, errors.New("verify block defines no rule")
	case 1:
		return rules[0], nil
	}
	return rules, nil
}
