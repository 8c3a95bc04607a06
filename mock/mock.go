// Package mock provides test doubles for cite interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/cite"
)

// Interface compliance checks.
var (
	_ cite.Transport        = (*Transport)(nil)
	_ cite.Subscription     = (*Subscription)(nil)
	_ cite.JobSubmitter     = (*JobSubmitter)(nil)
	_ cite.DocumentResolver = (*DocumentResolver)(nil)
	_ cite.Retriever        = (*Retriever)(nil)
)

// Transport is a test double for cite.Transport.
// Set SubscribeFn before calling Subscribe.
type Transport struct {
	SubscribeFn func(ctx context.Context, jobID string) (cite.Subscription, error)
}

// Subscribe delegates to SubscribeFn.
func (t *Transport) Subscribe(ctx context.Context, jobID string) (cite.Subscription, error) {
	return t.SubscribeFn(ctx, jobID)
}

// Subscription is a test double for cite.Subscription.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe because
// sessions always close their subscription.
type Subscription struct {
	NextFn  func() ([]byte, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Subscription) Next() ([]byte, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Subscription) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// JobSubmitter is a test double for cite.JobSubmitter.
// Set SubmitFn before calling Submit.
type JobSubmitter struct {
	SubmitFn func(ctx context.Context, query, conversationID string) (cite.Job, error)
}

// Submit delegates to SubmitFn.
func (j *JobSubmitter) Submit(ctx context.Context, query, conversationID string) (cite.Job, error) {
	return j.SubmitFn(ctx, query, conversationID)
}

// DocumentResolver is a test double for cite.DocumentResolver.
// Set ResolveFn before calling Resolve.
type DocumentResolver struct {
	ResolveFn func(ctx context.Context, documentID string, pageNumber int) (cite.Document, error)
}

// Resolve delegates to ResolveFn.
func (r *DocumentResolver) Resolve(ctx context.Context, documentID string, pageNumber int) (cite.Document, error) {
	return r.ResolveFn(ctx, documentID, pageNumber)
}

// Retriever is a test double for cite.Retriever.
type Retriever struct {
	SearchFn func(ctx context.Context, query string, limit int) ([]cite.Passage, error)
}

// Search delegates to SearchFn.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]cite.Passage, error) {
	return r.SearchFn(ctx, query, limit)
}
