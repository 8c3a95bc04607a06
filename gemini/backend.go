package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/cite"
	citejson "github.com/fwojciec/cite/json"
	"github.com/google/uuid"
)

// Interface compliance checks.
var (
	_ cite.JobSubmitter = (*Backend)(nil)
	_ cite.Transport    = (*Backend)(nil)
	_ cite.Subscription = (*subscription)(nil)
)

// ErrClosed is returned by Next after the subscription was closed.
var ErrClosed = errors.New("gemini: subscription closed")

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobInfo describes a job known to the backend.
type JobInfo struct {
	ID             string
	Query          string
	ConversationID string
	Status         JobStatus
	CreatedAt      time.Time
}

// BackendOption configures a [Backend].
type BackendOption func(*Backend)

// WithTopK sets how many passages are retrieved per query. Default is 5.
func WithTopK(k int) BackendOption {
	return func(b *Backend) {
		if k > 0 {
			b.topK = k
		}
	}
}

// WithClock sets the time source for job creation times.
func WithClock(now func() time.Time) BackendOption {
	return func(b *Backend) { b.now = now }
}

// Backend runs jobs in process. Submit registers a job; Subscribe runs it
// and streams its frames. Each job can be streamed once.
type Backend struct {
	retriever cite.Retriever
	generate  Generator
	topK      int
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*JobInfo
}

// NewBackend creates a Backend that answers from passages found by
// retriever, with text produced by generate.
func NewBackend(retriever cite.Retriever, generate Generator, opts ...BackendOption) *Backend {
	b := &Backend{
		retriever: retriever,
		generate:  generate,
		topK:      defaultTopK,
		now:       time.Now,
		jobs:      make(map[string]*JobInfo),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Submit registers a pending job for query. An empty conversationID starts
// a new conversation.
func (b *Backend) Submit(_ context.Context, query, conversationID string) (cite.Job, error) {
	if strings.TrimSpace(query) == "" {
		return cite.Job{}, errors.New("gemini: empty query")
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	info := &JobInfo{
		ID:             uuid.NewString(),
		Query:          query,
		ConversationID: conversationID,
		Status:         JobPending,
		CreatedAt:      b.now(),
	}
	b.mu.Lock()
	b.jobs[info.ID] = info
	b.mu.Unlock()
	return cite.Job{ID: info.ID, ConversationID: conversationID}, nil
}

// Job returns a snapshot of the job with the given id.
func (b *Backend) Job(id string) (JobInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return *info, true
}

// Subscribe starts the pending job jobID and returns its frame stream.
// Closing the subscription or cancelling ctx stops the job.
func (b *Backend) Subscribe(ctx context.Context, jobID string) (cite.Subscription, error) {
	b.mu.Lock()
	info, ok := b.jobs[jobID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("gemini: job %s: %w", jobID, cite.ErrUnknownJob)
	}
	if info.Status != JobPending {
		st := info.Status
		b.mu.Unlock()
		return nil, fmt.Errorf("gemini: job %s is %s: %w", jobID, st, cite.ErrInvalidState)
	}
	info.Status = JobRunning
	query := info.Query
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	frames := make(chan []byte)
	sub := &subscription{frames: frames, cancel: cancel, closed: make(chan struct{})}
	go func() {
		defer close(frames)
		status := b.run(ctx, query, func(evt cite.Event) error {
			data, err := citejson.EncodeEvent(evt)
			if err != nil {
				return err
			}
			select {
			case frames <- data:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		b.setStatus(jobID, status)
	}()
	return sub, nil
}

// Cleanup removes jobs created more than maxAge ago and returns how many
// were removed.
func (b *Backend) Cleanup(maxAge time.Duration) int {
	cutoff := b.now().Add(-maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, info := range b.jobs {
		if info.CreatedAt.Before(cutoff) {
			delete(b.jobs, id)
			n++
		}
	}
	return n
}

// RunCleanup calls Cleanup every interval until ctx is done. A non-positive
// maxAge means one hour.
func (b *Backend) RunCleanup(ctx context.Context, interval, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = defaultJobMaxAge
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Cleanup(maxAge)
		}
	}
}

func (b *Backend) setStatus(id string, status JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if info, ok := b.jobs[id]; ok {
		info.Status = status
	}
}

// run produces the frames of one job through emit and returns the final
// job status. The progress trace is a search step followed by an analysis
// step; the answer text follows, with a citation emitted the first time each
// valid [n] marker appears, then one source per cited passage and done.
func (b *Backend) run(ctx context.Context, query string, emit func(cite.Event) error) JobStatus {
	status := func(err error, fallback JobStatus) JobStatus {
		if ctx.Err() != nil {
			return JobCancelled
		}
		if err != nil {
			return JobFailed
		}
		return fallback
	}

	err := emit(toolCall(searchToolID, searchToolName, cite.ToolRunning, "Searching documents for: "+query))
	if err != nil {
		return status(err, JobFailed)
	}
	passages, err := b.retriever.Search(ctx, query, b.topK)
	if err != nil {
		_ = emit(toolCall(searchToolID, searchToolName, cite.ToolFailed, err.Error()))
		_ = emit(cite.EventError{Code: CodeRetrievalFailed, Message: err.Error()})
		return status(nil, JobFailed)
	}
	prompt := BuildPrompt(query, passages)
	for _, evt := range []cite.Event{
		toolCall(searchToolID, searchToolName, cite.ToolCompleted, fmt.Sprintf("Found %d relevant passages", len(passages))),
		toolCall(analyzeToolID, analyzeToolName, cite.ToolRunning, "Analyzing document content"),
		toolCall(analyzeToolID, analyzeToolName, cite.ToolCompleted, "Analysis complete"),
	} {
		if err := emit(evt); err != nil {
			return status(err, JobFailed)
		}
	}

	var (
		full  strings.Builder
		cited []int
	)
	for chunk, err := range b.generate(ctx, prompt) {
		if err != nil {
			if ctx.Err() != nil {
				return JobCancelled
			}
			_ = emit(cite.EventError{Code: CodeGenerationFailed, Message: err.Error()})
			return status(nil, JobFailed)
		}
		if err := emit(cite.EventTextDelta{Delta: chunk}); err != nil {
			return status(err, JobFailed)
		}
		full.WriteString(chunk)
		for _, id := range cite.CitationMarkers(full.String()) {
			if id < 1 || id > len(passages) || slices.Contains(cited, id) {
				continue
			}
			cited = append(cited, id)
			if err := emit(cite.EventCitation{Citation: citation(id, passages[id-1])}); err != nil {
				return status(err, JobFailed)
			}
		}
	}

	slices.Sort(cited)
	for _, id := range cited {
		if err := emit(cite.EventSource{Source: source(passages[id-1])}); err != nil {
			return status(err, JobFailed)
		}
	}
	if err := emit(cite.EventDone{}); err != nil {
		return status(err, JobFailed)
	}
	return JobCompleted
}

// BuildPrompt renders the question and numbered passages. Passage n is the
// one a [n] marker refers to.
func BuildPrompt(query string, passages []cite.Passage) string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions using only the provided documents.\n")
	b.WriteString("When you use information from a document, cite it inline with its number, like [1] or [2].\n\n")
	if len(passages) == 0 {
		b.WriteString("No documents matched the question.\n\n")
	} else {
		b.WriteString("Documents:\n\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] %s (page %d)\n%s\n\n", i+1, p.Title, p.PageNumber, truncateRunes(p.Text, maxContextRunes))
		}
	}
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Answer using information from the documents.\n")
	b.WriteString("2. Cite every statement taken from a document with its number.\n")
	b.WriteString("3. Be concise and accurate.\n")
	b.WriteString("4. If the documents do not contain the answer, say so.\n\n")
	b.WriteString("Answer:")
	return b.String()
}

func toolCall(id, name string, status cite.ToolStatus, description string) cite.EventToolCall {
	return cite.EventToolCall{ToolCall: cite.ToolCall{
		ID:          id,
		Name:        name,
		Status:      status,
		Description: description,
	}}
}

func citation(id int, p cite.Passage) cite.Citation {
	return cite.Citation{
		ID:            id,
		DocumentID:    p.DocumentID,
		DocumentTitle: p.Title,
		PageNumber:    p.PageNumber,
		Text:          p.Excerpt,
	}
}

func source(p cite.Passage) cite.SourceCard {
	return cite.SourceCard{
		DocumentID: p.DocumentID,
		Title:      p.Title,
		PageNumber: p.PageNumber,
		Excerpt:    p.Excerpt,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// subscription streams the frames of one running job.
type subscription struct {
	frames <-chan []byte
	cancel context.CancelFunc
	closed chan struct{}
	once   sync.Once
}

func (s *subscription) Next() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	select {
	case data, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-s.closed:
		return nil, ErrClosed
	}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.cancel()
	})
	return nil
}
