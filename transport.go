package cite

import "context"

// Transport opens the event stream for a job. Implementations own the
// connection; the session only pulls frames and closes the subscription.
type Transport interface {
	Subscribe(ctx context.Context, jobID string) (Subscription, error)
}

// Subscription uses a pull-based iterator pattern. Next blocks until the next
// frame arrives and returns io.EOF when the stream ends. Close must unblock a
// pending Next. Frames are delivered in job order.
type Subscription interface {
	Next() ([]byte, error)
	Close() error
}

// Decoder turns one raw frame into an Event. A *DecodeError means the frame
// is skipped; decoding must have no side effects.
type Decoder func(frame []byte) (Event, error)

// Job identifies a submitted query.
type Job struct {
	ID             string
	ConversationID string
}

// JobSubmitter submits a query and returns the job whose stream carries the
// answer. An empty conversationID asks the backend to start a new one.
type JobSubmitter interface {
	Submit(ctx context.Context, query, conversationID string) (Job, error)
}

// Document is a renderable document resource for a page.
type Document struct {
	ID         string
	Title      string
	PageNumber int
	Location   string // URL or file path
}

// DocumentResolver maps the identifiers carried by citations and sources to
// a renderable resource. The core never fetches documents itself.
type DocumentResolver interface {
	Resolve(ctx context.Context, documentID string, pageNumber int) (Document, error)
}

// Passage is one document page matched by a search.
type Passage struct {
	DocumentID string
	Title      string
	PageNumber int
	Text       string // full page text
	Excerpt    string // short snippet around the best match
	Score      int
}

// Retriever finds the document pages most relevant to a query, best first.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
}
