package tutor_test

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/grading"
	"github.com/p-n-ai/ledger/internal/progression"
	"github.com/p-n-ai/ledger/internal/ratelimit"
	"github.com/p-n-ai/ledger/internal/sandbox"
	"github.com/p-n-ai/ledger/internal/tutor"
)

var solutions = map[string]string{
	"The Caravan Loader":   "water_liters = 50\nfood_kgs = 100\nmessenger_name = 'Hermes'",
	"The Merchant's Tally": "coins = 12\nprice = 3\ntotal = coins * price\nprint(total)",
	"The Gatekeeper":       "water = 30\nif water >= 25:\n    status = 'enough'\nelse:\n    status = 'thirsty'\nprint(status)",
	"Fill the Barrels":     "barrels = {}\ntotal = 0\nfor i = 1, 5 do\n  barrels[i] = i * i\n  total = total + i * i\nend",
	"The Echo":             "def echo(word):\n    return word + ' ' + word\nresult = echo('ledger')",
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func newService(t *testing.T, opts ...tutor.Option) *tutor.Service {
	t.Helper()
	tree, err := content.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	d := grading.NewDispatcher(sandbox.New(sandbox.Config{}), nil)
	return tutor.NewService(tree, d, opts...)
}

// answer builds a passing submission for the node at p.
func answer(t *testing.T, tree *content.Tree, p progression.Position) tutor.SubmitRequest {
	t.Helper()
	node, ok := tree.NodeAt(p.Chapter, p.Zone, p.Node)
	if !ok {
		t.Fatalf("no node at %s", p)
	}
	switch n := node.(type) {
	case *content.Quiz:
		return tutor.SubmitRequest{QuizIndex: intPtr(n.CorrectIndex)}
	case *content.Challenge:
		script, ok := solutions[n.Title]
		if !ok {
			t.Fatalf("no solution for %q", n.Title)
		}
		return tutor.SubmitRequest{Script: &script}
	default:
		return tutor.SubmitRequest{}
	}
}

// passUntil submits passing answers until the session sits at target.
func passUntil(t *testing.T, svc *tutor.Service, id string, target progression.Position) {
	t.Helper()
	for {
		m, err := svc.Map(t.Context(), id)
		if err != nil {
			t.Fatalf("Map() error = %v", err)
		}
		pos := progression.Position{Chapter: m.CurrentChapter, Zone: m.CurrentZone, Node: m.CurrentNode}
		if pos == target || m.Complete {
			return
		}
		resp, err := svc.Submit(t.Context(), id, answer(t, svc.Tree(), pos))
		if err != nil {
			t.Fatalf("Submit() at %s error = %v", pos, err)
		}
		if !resp.Passed {
			t.Fatalf("Submit() at %s = %q (%s), want pass", pos, resp.Message, resp.Error)
		}
	}
}

func TestService_StartSession(t *testing.T) {
	svc := newService(t)

	sess, err := svc.StartSession(t.Context())
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if sess.ID == "" {
		t.Error("StartSession() returned empty ID")
	}
	if sess.Level != 1 || sess.XP != 0 {
		t.Errorf("StartSession() level = %d xp = %d, want 1 and 0", sess.Level, sess.XP)
	}
	if want := "Chapter 1: Desert of Beginnings - 1.1 The Memory Jar (1/3)"; sess.Progress != want {
		t.Errorf("Progress = %q, want %q", sess.Progress, want)
	}

	got, err := svc.Session(t.Context(), sess.ID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("Session() ID = %q, want %q", got.ID, sess.ID)
	}
}

func TestService_CurrentNode(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())

	v, err := svc.CurrentNode(t.Context(), sess.ID)
	if err != nil {
		t.Fatalf("CurrentNode() error = %v", err)
	}
	if v.Type != "lesson" || v.Title != "The Empty Jar" || v.Content == "" {
		t.Errorf("CurrentNode() = %+v, want the first lesson", v)
	}
	if v.Options != nil || v.Starter != "" {
		t.Errorf("lesson view carries quiz or challenge fields: %+v", v)
	}

	if _, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	v, _ = svc.CurrentNode(t.Context(), sess.ID)
	if v.Type != "quiz" || v.Question == "" || len(v.Options) < 2 {
		t.Errorf("CurrentNode() = %+v, want the quiz", v)
	}

	passUntil(t, svc, sess.ID, progression.Position{Chapter: 0, Zone: 0, Node: 2})
	v, _ = svc.CurrentNode(t.Context(), sess.ID)
	if v.Type != "challenge" || v.Runtime != "starlark" || v.Description == "" {
		t.Errorf("CurrentNode() = %+v, want the challenge", v)
	}
}

func TestService_Map(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())
	passUntil(t, svc, sess.ID, progression.Position{Chapter: 1, Zone: 0, Node: 2})

	m, err := svc.Map(t.Context(), sess.ID)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if m.CurrentChapter != 1 || m.CurrentZone != 0 || m.CurrentNode != 2 {
		t.Fatalf("Map() position = (%d,%d,%d), want (1,0,2)", m.CurrentChapter, m.CurrentZone, m.CurrentNode)
	}
	if m.Complete {
		t.Error("Map() Complete = true, want false")
	}
	if m.Completed != 8 || m.Total != 15 {
		t.Errorf("Map() completed = %d total = %d, want 8 and 15", m.Completed, m.Total)
	}

	chapters := []struct {
		done, total, pct int
	}{
		{6, 6, 100},
		{2, 5, 40},
		{0, 4, 0},
	}
	for i, want := range chapters {
		got := m.Chapters[i]
		if got.Done != want.done || got.Total != want.total || got.Pct != want.pct {
			t.Errorf("chapter %d completion = %d/%d (%d%%), want %d/%d (%d%%)",
				i, got.Done, got.Total, got.Pct, want.done, want.total, want.pct)
		}
	}
	if want := []string{"Chapter 1: Desert of Beginnings Cleared"}; !slices.Equal(m.Badges, want) {
		t.Errorf("Map() badges = %q, want %q", m.Badges, want)
	}
	if sv, _ := svc.Session(t.Context(), sess.ID); !slices.Equal(sv.Badges, m.Badges) {
		t.Errorf("Session() badges = %q, want %q", sv.Badges, m.Badges)
	}

	for ci, ch := range m.Chapters {
		for zi, zone := range ch.Zones {
			for ni, node := range zone.Nodes {
				p := progression.Position{Chapter: ci, Zone: zi, Node: ni}
				want := progression.StatusLocked
				switch p.Compare(progression.Position{Chapter: 1, Zone: 0, Node: 2}) {
				case -1:
					want = progression.StatusCompleted
				case 0:
					want = progression.StatusUnlocked
				}
				if node.Status != want {
					t.Errorf("status of %s (%q) = %s, want %s", p, node.Title, node.Status, want)
				}
			}
		}
	}

	st, err := svc.Status(t.Context(), sess.ID, progression.Position{Chapter: 2, Zone: 0, Node: 0})
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st != progression.StatusLocked {
		t.Errorf("Status() = %s, want locked", st)
	}
}

func TestService_Submit(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())
	passUntil(t, svc, sess.ID, progression.Position{Chapter: 0, Zone: 0, Node: 1})

	wrong, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{QuizIndex: intPtr(0)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if wrong.Passed || wrong.Advanced || wrong.XPAwarded != 0 {
		t.Errorf("wrong answer = %+v, want no pass and no advance", wrong)
	}
	if wrong.Message != content.MsgIncorrect {
		t.Errorf("Message = %q, want %q", wrong.Message, content.MsgIncorrect)
	}

	right, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{QuizIndex: intPtr(1)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !right.Passed || !right.Advanced || right.XPAwarded == 0 {
		t.Errorf("right answer = %+v, want pass and advance", right)
	}

	// A broken script is a runtime error and keeps the learner in place.
	broken, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{Script: strPtr("water_liters = ")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if broken.Passed || broken.Message != content.MsgRuntimeError || broken.Error == "" {
		t.Errorf("broken script = %+v, want runtime error", broken)
	}

	// Code is accepted in place of Script.
	script := solutions["The Caravan Loader"]
	viaCode, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{Code: &script})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !viaCode.Passed {
		t.Errorf("submit via code = %+v, want pass", viaCode)
	}

	got, _ := svc.Session(t.Context(), sess.ID)
	if got.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", got.Attempts)
	}
}

func TestService_SavedScript(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())
	passUntil(t, svc, sess.ID, progression.Position{Chapter: 0, Zone: 0, Node: 2})

	v, _ := svc.CurrentNode(t.Context(), sess.ID)
	starter := v.Starter

	draft := "water_liters = 50"
	if _, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{Script: &draft}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	v, _ = svc.CurrentNode(t.Context(), sess.ID)
	if v.Starter != draft {
		t.Errorf("Starter after a failed attempt = %q, want the saved draft %q", v.Starter, draft)
	}

	other, _ := svc.StartSession(t.Context())
	passUntil(t, svc, other.ID, progression.Position{Chapter: 0, Zone: 0, Node: 2})
	if v, _ := svc.CurrentNode(t.Context(), other.ID); v.Starter != starter {
		t.Errorf("another session's Starter = %q, want the original %q", v.Starter, starter)
	}

	passUntil(t, svc, sess.ID, progression.Position{Chapter: 0, Zone: 1, Node: 0})
	snap, err := svc.Snapshot(t.Context(), sess.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := snap.Scripts["The Caravan Loader"]; got != solutions["The Caravan Loader"] {
		t.Errorf("saved script = %q, want the passing one", got)
	}
	if _, ok := snap.Scripts["Label Sorting"]; ok {
		t.Error("quiz answers should not be saved as scripts")
	}
}

func TestService_Snapshot(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())
	passUntil(t, svc, sess.ID, progression.Position{Chapter: 0, Zone: 1, Node: 0})

	snap, err := svc.Snapshot(t.Context(), sess.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	tests := []struct {
		pos  progression.Position
		want progression.Status
	}{
		{progression.Position{Chapter: 0, Zone: 0, Node: 2}, progression.StatusCompleted},
		{progression.Position{Chapter: 0, Zone: 1, Node: 0}, progression.StatusUnlocked},
		{progression.Position{Chapter: 2, Zone: 0, Node: 0}, progression.StatusLocked},
		{progression.Position{Chapter: 9, Zone: 0, Node: 0}, ""},
		{progression.Position{Chapter: 0, Zone: 0, Node: -1}, ""},
	}
	for _, tt := range tests {
		if got := snap.Map.StatusOf(tt.pos); got != tt.want {
			t.Errorf("StatusOf(%s) = %q, want %q", tt.pos, got, tt.want)
		}
	}

	// The snapshot is a copy and does not follow later submissions.
	snap.Scripts["The Caravan Loader"] = "edited"
	passUntil(t, svc, sess.ID, progression.Position{Chapter: 0, Zone: 1, Node: 1})
	if got := snap.Map.StatusOf(progression.Position{Chapter: 0, Zone: 1, Node: 0}); got != progression.StatusUnlocked {
		t.Errorf("StatusOf() after a later submit = %q, want unlocked", got)
	}
	again, _ := svc.Snapshot(t.Context(), sess.ID)
	if again.Scripts["The Caravan Loader"] == "edited" {
		t.Error("editing a snapshot changed the session")
	}

	if _, err := svc.Snapshot(t.Context(), "missing"); !errors.Is(err, tutor.ErrNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrNotFound", err)
	}
}

func TestService_CourseComplete(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())
	passUntil(t, svc, sess.ID, progression.Position{Chapter: -1})

	m, err := svc.Map(t.Context(), sess.ID)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if !m.Complete || m.Completed != m.Total {
		t.Errorf("Map() complete = %v completed = %d/%d, want all", m.Complete, m.Completed, m.Total)
	}
	if m.Progress != "Course complete" {
		t.Errorf("Progress = %q, want %q", m.Progress, "Course complete")
	}

	wantXP := 0
	svc.Tree().Walk(func(_, _, _ int, n content.Node) bool {
		wantXP += n.Info().XP
		return true
	})
	if m.XP != wantXP || m.Level != tutor.Level(wantXP) {
		t.Errorf("Map() xp = %d level = %d, want %d and %d", m.XP, m.Level, wantXP, tutor.Level(wantXP))
	}
	var wantBadges []string
	for _, ch := range m.Chapters {
		wantBadges = append(wantBadges, ch.Title+" Cleared")
	}
	for _, milestone := range tutor.XPMilestones {
		if wantXP >= milestone {
			wantBadges = append(wantBadges, fmt.Sprintf("XP Milestone %d+", milestone))
		}
	}
	if !slices.Equal(m.Badges, wantBadges) {
		t.Errorf("Map() badges = %q, want %q", m.Badges, wantBadges)
	}

	v, _ := svc.CurrentNode(t.Context(), sess.ID)
	if v.Type != "complete" || v.Content != tutor.CompletionMessage {
		t.Errorf("CurrentNode() = %+v, want the completion view", v)
	}

	_, err = svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{})
	if !errors.Is(err, tutor.ErrCourseComplete) {
		t.Errorf("Submit() after finish error = %v, want ErrCourseComplete", err)
	}
	if !tutor.IsCode(err, tutor.CodeCourseComplete) {
		t.Errorf("GetCode() = %s, want %s", tutor.GetCode(err), tutor.CodeCourseComplete)
	}

	again, _ := svc.Map(t.Context(), sess.ID)
	if again.CurrentChapter != m.CurrentChapter || again.CurrentZone != m.CurrentZone || again.CurrentNode != m.CurrentNode {
		t.Error("terminal position moved after a rejected submit")
	}
}

func TestService_RateLimit(t *testing.T) {
	svc := newService(t, tutor.WithLimiter(ratelimit.NewMemoryLimiter(2, time.Minute)))
	sess, _ := svc.StartSession(t.Context())

	for i := range 2 {
		if _, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{QuizIndex: intPtr(0)}); err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
	}
	_, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{})
	if !errors.Is(err, tutor.ErrRateLimited) {
		t.Errorf("Submit() error = %v, want ErrRateLimited", err)
	}

	other, _ := svc.StartSession(t.Context())
	if _, err := svc.Submit(t.Context(), other.ID, tutor.SubmitRequest{}); err != nil {
		t.Errorf("Submit() for another session error = %v", err)
	}
}

func TestService_UnknownSession(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()

	calls := map[string]func() error{
		"CurrentNode": func() error { _, err := svc.CurrentNode(ctx, "missing"); return err },
		"Map":         func() error { _, err := svc.Map(ctx, "missing"); return err },
		"Snapshot":    func() error { _, err := svc.Snapshot(ctx, "missing"); return err },
		"Submit":      func() error { _, err := svc.Submit(ctx, "missing", tutor.SubmitRequest{}); return err },
		"Session":     func() error { _, err := svc.Session(ctx, "missing"); return err },
		"EndSession":  func() error { return svc.EndSession(ctx, "missing") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, tutor.ErrNotFound) {
				t.Errorf("%s() error = %v, want ErrNotFound", name, err)
			}
			if !strings.Contains(err.Error(), "missing") {
				t.Errorf("%s() error = %q, want the session id", name, err)
			}
		})
	}
}

func TestService_EndSession(t *testing.T) {
	svc := newService(t)
	sess, _ := svc.StartSession(t.Context())

	if err := svc.EndSession(t.Context(), sess.ID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if _, err := svc.CurrentNode(t.Context(), sess.ID); !errors.Is(err, tutor.ErrNotFound) {
		t.Errorf("CurrentNode() after end error = %v, want ErrNotFound", err)
	}
	if n := svc.Sessions().Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestService_EmptyCourse(t *testing.T) {
	svc := tutor.NewService(content.NewTree(), grading.NewDispatcher(sandbox.New(sandbox.Config{}), nil))
	sess, err := svc.StartSession(t.Context())
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	v, _ := svc.CurrentNode(t.Context(), sess.ID)
	if v.Type != "complete" {
		t.Errorf("CurrentNode() type = %q, want complete", v.Type)
	}
	m, _ := svc.Map(t.Context(), sess.ID)
	if len(m.Chapters) != 0 || m.Total != 0 {
		t.Errorf("Map() = %+v, want no chapters", m)
	}
	if _, err := svc.Submit(t.Context(), sess.ID, tutor.SubmitRequest{}); !errors.Is(err, tutor.ErrCourseComplete) {
		t.Errorf("Submit() error = %v, want ErrCourseComplete", err)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{350, 4},
	}
	for _, tt := range tests {
		if got := tutor.Level(tt.xp); got != tt.want {
			t.Errorf("Level(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}
