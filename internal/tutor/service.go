// Package tutor is the learner-facing surface of the course: it starts
// sessions, renders the current node and the course map, and grades
// submissions.
package tutor

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/grading"
	"github.com/p-n-ai/ledger/internal/progression"
	"github.com/p-n-ai/ledger/internal/ratelimit"
	"github.com/p-n-ai/ledger/internal/session"
)

// Service ties the course tree to live sessions.
type Service struct {
	tree       *content.Tree
	sessions   session.Store
	dispatcher *grading.Dispatcher
	limiter    ratelimit.Limiter
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter throttles submissions per session.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithStore replaces the default in-memory session store.
func WithStore(st session.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.sessions = st
		}
	}
}

// NewService creates a service over tree that grades with dispatcher.
func NewService(tree *content.Tree, dispatcher *grading.Dispatcher, opts ...Option) *Service {
	s := &Service{
		tree:       tree,
		sessions:   session.NewMemoryStore(),
		dispatcher: dispatcher,
		limiter:    ratelimit.NopLimiter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tree returns the course being served.
func (s *Service) Tree() *content.Tree {
	return s.tree
}

// Sessions returns the session store.
func (s *Service) Sessions() session.Store {
	return s.sessions
}

// StartSession begins a new run at the first node.
func (s *Service) StartSession(ctx context.Context) (SessionView, error) {
	sess, err := s.sessions.Create(s.tree)
	if err != nil {
		return SessionView{}, err
	}
	slog.InfoContext(ctx, "session started", "session_id", sess.ID)
	return s.describe(sess)
}

// Session describes an existing session.
func (s *Service) Session(_ context.Context, id string) (SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	return s.describe(sess)
}

// EndSession discards a session.
func (s *Service) EndSession(ctx context.Context, id string) error {
	if err := s.sessions.Delete(id); err != nil {
		return notFound(err)
	}
	slog.InfoContext(ctx, "session ended", "session_id", id)
	return nil
}

// CurrentNode renders the learner's current node, or the completion view
// once the course is finished.
func (s *Service) CurrentNode(_ context.Context, id string) (NodeView, error) {
	sess, err := s.get(id)
	if err != nil {
		return NodeView{}, err
	}
	var v NodeView
	_ = sess.Do(func(st *session.State) error {
		v = nodeView(st.Engine, st.Scripts)
		return nil
	})
	return v, nil
}

// Map renders the whole course with each node's status.
func (s *Service) Map(_ context.Context, id string) (MapView, error) {
	sess, err := s.get(id)
	if err != nil {
		return MapView{}, err
	}
	var v MapView
	_ = sess.Do(func(st *session.State) error {
		v = mapView(st.Engine, st.XP)
		return nil
	})
	return v, nil
}

// Snapshot copies the session's map and saved scripts in one step, so an
// export never mixes state from before and after a submission.
func (s *Service) Snapshot(_ context.Context, id string) (Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	_ = sess.Do(func(st *session.State) error {
		snap = Snapshot{Map: mapView(st.Engine, st.XP), Scripts: maps.Clone(st.Scripts)}
		return nil
	})
	return snap, nil
}

// Status classifies the node at p for the session.
func (s *Service) Status(_ context.Context, id string, p progression.Position) (progression.Status, error) {
	sess, err := s.get(id)
	if err != nil {
		return "", err
	}
	var st progression.Status
	_ = sess.Do(func(state *session.State) error {
		st = state.Engine.StatusOf(p)
		return nil
	})
	return st, nil
}

// Submit grades req against the current node and advances on a pass.
// Submitting after the course is finished returns ErrCourseComplete.
func (s *Service) Submit(ctx context.Context, id string, req SubmitRequest) (SubmitResponse, error) {
	sess, err := s.get(id)
	if err != nil {
		return SubmitResponse{}, err
	}

	allowed, err := s.limiter.Allow(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "rate limiter unavailable", "session_id", id, "error", err)
	}
	if !allowed {
		return SubmitResponse{}, ErrRateLimited
	}

	sub := req.submission()
	var resp SubmitResponse
	err = sess.Do(func(st *session.State) error {
		if node, ok := st.Engine.Current(); ok && node.Kind() == content.KindChallenge && sub.Script != nil {
			st.Scripts[node.Info().Title] = *sub.Script
		}
		out, err := s.dispatcher.Submit(ctx, id, st.Engine, sub)
		if err != nil {
			return err
		}
		st.Attempts++
		st.XP += out.XPAwarded
		resp = SubmitResponse{
			Passed:    out.Result.Passed,
			Message:   out.Result.Message,
			Stdout:    out.Result.Stdout,
			Error:     out.Result.Error,
			Advanced:  out.Advanced,
			Complete:  out.Complete,
			XPAwarded: out.XPAwarded,
			Progress:  st.Engine.Label(),
		}
		return nil
	})
	if errors.Is(err, grading.ErrCourseComplete) {
		return SubmitResponse{}, ErrCourseComplete
	}
	if err != nil {
		return SubmitResponse{}, newError(CodeUnknown, "grading submission", err)
	}
	return resp, nil
}

func (s *Service) get(id string) (*session.Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, notFound(err)
	}
	return sess, nil
}

func (s *Service) describe(sess *session.Session) (SessionView, error) {
	var v SessionView
	err := sess.Do(func(st *session.State) error {
		v = SessionView{
			ID:       sess.ID,
			XP:       st.XP,
			Level:    Level(st.XP),
			Attempts: st.Attempts,
			Badges:   mapView(st.Engine, st.XP).Badges,
			Progress: st.Engine.Label(),
		}
		return nil
	})
	return v, err
}

func notFound(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return newError(CodeNotFound, "lookup", err)
	}
	return err
}
