package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/onetwotrip/punk/internal/audit"
	"github.com/onetwotrip/punk/internal/command"
	"github.com/onetwotrip/punk/internal/deliver"
	"github.com/onetwotrip/punk/internal/record"
	"github.com/onetwotrip/punk/internal/render"
	"github.com/onetwotrip/punk/internal/store"
)

// Service answers deployment queries: parse the command, fetch and merge the
// environment's documents, validate the request against them, render a reply
// and hand it to the delivery sink.
type Service struct {
	fetcher store.Fetcher
	sink    deliver.Sink
	audit   audit.Recorder
}

// New creates a query service without an audit log.
func New(fetcher store.Fetcher, sink deliver.Sink) *Service {
	return &Service{fetcher: fetcher, sink: sink}
}

// NewWithAudit creates a query service that records handled queries.
func NewWithAudit(fetcher store.Fetcher, sink deliver.Sink, recorder audit.Recorder) *Service {
	return &Service{fetcher: fetcher, sink: sink, audit: recorder}
}

// HandleCommand runs one deployment query end to end and reports its outcome
// label. The returned error is a delivery error; every query path resolves to
// a reply or a logged condition, never a crash.
func (s *Service) HandleCommand(ctx context.Context, text, user, target string) (string, error) {
	req, err := command.Parse(text, user, target)
	if err != nil {
		s.recordAudit(command.Request{User: user, Target: target, Message: text}, audit.OutcomeWrongArguments)
		return audit.OutcomeWrongArguments, s.sink.SendPlainText(ctx, target, err.Error())
	}

	merged, fetchErr := s.lookup(ctx, req.Environment)
	if fetchErr != nil {
		log.Printf("app: can't search deployment index: %v", fetchErr)
	}

	if len(merged) == 0 {
		s.recordAudit(req, audit.OutcomeEmptyEnvironment)
		reply := fmt.Sprintf("nothing found for environment `%s`", req.Environment)
		return audit.OutcomeEmptyEnvironment, s.sink.SendPlainText(ctx, target, reply)
	}

	if req.Project != "" {
		if _, ok := merged[req.Project]; !ok {
			s.recordAudit(req, audit.OutcomeUnknownProject)
			reply := fmt.Sprintf("no entry for %s found", req.Project)
			return audit.OutcomeUnknownProject, s.sink.SendPlainText(ctx, target, reply)
		}
	}

	var msg render.Message
	if req.Extended {
		msg = render.Extended(req, merged)
	} else {
		msg = render.Compact(req, merged)
	}

	s.recordAudit(req, audit.OutcomeOK)

	if err := s.sink.SendRich(ctx, target, msg); err != nil {
		log.Printf("app: can't send rich reply: %v", err)
		return audit.OutcomeOK, s.sink.SendPlainText(ctx, target, render.Fallback(req, merged))
	}
	return audit.OutcomeOK, nil
}

// lookup fetches and merges the environment's documents. A fetch failure
// degrades to an empty record, returned alongside the error so the caller
// can log it and tests can tell the failed path from a truly empty one.
func (s *Service) lookup(ctx context.Context, env string) (record.Merged, error) {
	docs, err := s.fetcher.FetchEnvironment(ctx, env)
	if err != nil {
		return record.Merged{}, err
	}
	return record.Merge(docs), nil
}

// recordAudit writes the audit entry fire-and-forget; audit trouble never
// delays or fails a reply.
func (s *Service) recordAudit(req command.Request, outcome string) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		Requester:   req.User,
		Environment: req.Environment,
		Project:     req.Project,
		Extended:    req.Extended,
		Outcome:     outcome,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.Record(ctx, entry); err != nil {
			log.Printf("app: audit record: %v", err)
		}
	}()
}

type healthReporter interface {
	Healthy() bool
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ready reports per-dependency readiness checks.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{}

	if hr, ok := s.fetcher.(healthReporter); ok {
		if hr.Healthy() {
			checks["store"] = map[string]any{"status": "ok"}
		} else {
			ready = false
			checks["store"] = map[string]any{"status": "error", "error": "deployment index unreachable"}
		}
	}

	if s.audit != nil {
		if err := s.audit.Ping(ctx); err != nil {
			ready = false
			checks["audit"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["audit"] = map[string]any{"status": "ok"}
		}
	}

	return ready, checks
}
