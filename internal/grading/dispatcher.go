// Package grading decides whether a submission passes the learner's current
// node and, only then, moves the learner forward.
package grading

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/progression"
)

// ErrCourseComplete is returned when there is no current node to grade.
var ErrCourseComplete = errors.New("course complete: no current node")

// Outcome is the result of one graded submission.
type Outcome struct {
	Result    content.Result
	Node      content.Node
	Before    progression.Position
	After     progression.Position
	Advanced  bool
	Complete  bool
	XPAwarded int
}

// Dispatcher grades submissions against an engine's current node.
type Dispatcher struct {
	exec   content.Executor
	events EventLogger
}

// NewDispatcher creates a dispatcher. A nil events logger discards events.
func NewDispatcher(exec content.Executor, events EventLogger) *Dispatcher {
	if events == nil {
		events = NopEventLogger{}
	}
	return &Dispatcher{exec: exec, events: events}
}

// Submit grades sub against the current node of e and advances e only when
// the grade passes. The caller must serialise calls per engine.
func (d *Dispatcher) Submit(ctx context.Context, sessionID string, e *progression.Engine, sub content.Submission) (Outcome, error) {
	node, ok := e.Current()
	if !ok {
		return Outcome{}, ErrCourseComplete
	}

	start := time.Now()
	before := e.Position()
	res := node.Grade(ctx, sub, d.exec)

	out := Outcome{Result: res, Node: node, Before: before, After: before}
	if res.Passed {
		out.XPAwarded = node.Info().XP
		out.Advanced = e.Advance()
		out.After = e.Position()
		out.Complete = e.Complete()
	}

	slog.Info("submission graded",
		"session_id", sessionID,
		"node", node.Info().Title,
		"kind", node.Kind(),
		"passed", res.Passed,
		"message", res.Message,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	d.logEvent(ctx, Event{
		SessionID: sessionID,
		EventType: EventGradeSubmitted,
		Data:      gradeData(node, sub, out),
	})
	if out.Complete && e.Finished() {
		d.logEvent(ctx, Event{
			SessionID: sessionID,
			EventType: EventCourseCompleted,
			Data:      map[string]any{"last_node": node.Info().Title},
		})
	}
	return out, nil
}

func (d *Dispatcher) logEvent(ctx context.Context, ev Event) {
	if err := d.events.LogEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to log grade event", "type", ev.EventType, "session_id", ev.SessionID, "error", err)
	}
}

func gradeData(node content.Node, sub content.Submission, out Outcome) map[string]any {
	data := map[string]any{
		"node":     node.Info().Title,
		"kind":     string(node.Kind()),
		"passed":   out.Result.Passed,
		"message":  out.Result.Message,
		"chapter":  out.Before.Chapter,
		"zone":     out.Before.Zone,
		"index":    out.Before.Node,
		"xp":       out.XPAwarded,
		"advanced": out.Advanced,
	}
	if sub.QuizIndex != nil && node.Kind() == content.KindQuiz {
		data["quiz_index"] = *sub.QuizIndex
	}
	if sub.Script != nil && node.Kind() == content.KindChallenge {
		data["script_digest"] = ScriptDigest(*sub.Script)
		data["script_len"] = len(*sub.Script)
	}
	if out.Result.Error != "" {
		data["error"] = out.Result.Error
	}
	return data
}
