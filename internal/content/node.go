// Package content defines the course tree and the three kinds of node a
// learner works through: lessons, quizzes and coding challenges.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/ledger/internal/sandbox"
)

// Kind identifies a node variant.
type Kind string

const (
	KindLesson    Kind = "lesson"
	KindQuiz      Kind = "quiz"
	KindChallenge Kind = "challenge"
)

// Grading messages.
const (
	MsgContinued    = "continued"
	MsgCorrect      = "correct"
	MsgIncorrect    = "incorrect"
	MsgRuntimeError = "runtime error"
	MsgPassed       = "challenge passed"
	MsgNoSubmission = "no script submitted"
)

// Default XP per kind, used when a node does not set its own.
const (
	DefaultLessonXP    = 10
	DefaultQuizXP      = 20
	DefaultChallengeXP = 50
)

// Meta is shared by every node.
type Meta struct {
	Title string
	XP    int
}

// Submission is a learner's answer. Which field is read depends on the
// node kind; the other is ignored.
type Submission struct {
	QuizIndex *int
	Script    *string
}

// Result is the outcome of grading one submission.
type Result struct {
	Passed  bool
	Message string
	Stdout  *string
	Error   string
}

// Executor runs challenge scripts.
type Executor interface {
	Execute(ctx context.Context, rt sandbox.Runtime, script string) sandbox.Execution
}

// Prompt is what a learner is shown for a node. Each kind fills only its
// own fields.
type Prompt struct {
	Content     string
	Question    string
	Options     []string
	Description string
	Runtime     sandbox.Runtime
	Starter     string
	Hints       []string
}

// Node is one step of the course.
type Node interface {
	Kind() Kind
	Info() Meta
	Prompt() Prompt
	Grade(ctx context.Context, sub Submission, ex Executor) Result
}

// Lesson presents text and passes on any submission.
type Lesson struct {
	Meta
	Content string
}

func (l *Lesson) Kind() Kind { return KindLesson }
func (l *Lesson) Info() Meta { return l.Meta }
func (l *Lesson) Prompt() Prompt { return Prompt{Content: l.Content} }

func (l *Lesson) Grade(context.Context, Submission, Executor) Result {
	return Result{Passed: true, Message: MsgContinued}
}

// Quiz is a multiple-choice question with a single correct option.
type Quiz struct {
	Meta
	Question     string
	Options      []string
	CorrectIndex int
}

func (q *Quiz) Kind() Kind { return KindQuiz }
func (q *Quiz) Info() Meta { return q.Meta }
func (q *Quiz) Prompt() Prompt { return Prompt{Question: q.Question, Options: q.Options} }

// Grade passes only when the submitted index equals CorrectIndex. A missing
// or out-of-range index is simply wrong.
func (q *Quiz) Grade(_ context.Context, sub Submission, _ Executor) Result {
	if sub.QuizIndex != nil && *sub.QuizIndex == q.CorrectIndex {
		return Result{Passed: true, Message: MsgCorrect}
	}
	return Result{Passed: false, Message: MsgIncorrect}
}

// Challenge asks for a script whose resulting bindings and output satisfy
// Rule.
type Challenge struct {
	Meta
	Description string
	Runtime     sandbox.Runtime
	Starter     string
	Hints       []string
	Rule        Rule
}

func (c *Challenge) Kind() Kind { return KindChallenge }
func (c *Challenge) Info() Meta { return c.Meta }

func (c *Challenge) Prompt() Prompt {
	return Prompt{
		Description: c.Description,
		Runtime:     c.Runtime,
		Starter:     c.Starter,
		Hints:       c.Hints,
	}
}

// Grade executes the script and verifies it. Script faults are reported as
// runtime errors; verification faults count as an incorrect answer.
func (c *Challenge) Grade(ctx context.Context, sub Submission, ex Executor) Result {
	if sub.Script == nil || strings.TrimSpace(*sub.Script) == "" {
		return Result{Passed: false, Message: MsgNoSubmission}
	}

	exec := ex.Execute(ctx, c.Runtime, *sub.Script)
	stdout := exec.Stdout
	if exec.Failed() {
		return Result{Passed: false, Message: MsgRuntimeError, Stdout: &stdout, Error: exec.Err}
	}

	ok, err := c.verify(exec.Bindings, stdout)
	if err != nil {
		slog.Debug("verification failed", "challenge", c.Title, "error", err)
		return Result{Passed: false, Message: MsgIncorrect, Stdout: &stdout}
	}
	if !ok {
		return Result{Passed: false, Message: MsgIncorrect, Stdout: &stdout}
	}
	return Result{Passed: true, Message: MsgPassed, Stdout: &stdout}
}

func (c *Challenge) verify(b sandbox.Bindings, stdout string) (ok bool, err error) {
	if c.Rule == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return c.Rule.Verify(b, stdout)
}
