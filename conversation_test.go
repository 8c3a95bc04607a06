package cite_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/cite"
	citejson "github.com/fwojciec/cite/json"
	"github.com/fwojciec/cite/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AppendUserMessage(t *testing.T) {
	t.Parallel()
	c := cite.NewConversation(newFeed().transport(), citejson.DecodeEvent)
	msg := c.AppendUserMessage("What is covered?")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, cite.RoleUser, msg.Role)
	assert.Equal(t, []cite.Message{msg}, c.History())
}

func TestConversation_StreamToFinalize(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
	c.AppendUserMessage("q")

	s, err := c.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, s, c.Active())

	f.send(t, cite.EventTextDelta{Delta: "Answer [1]"})
	f.send(t, cite.EventCitation{Citation: cite.Citation{ID: 1, DocumentID: "d1"}})
	require.Eventually(t, func() bool {
		m, ok := c.InFlight()
		return ok && len(m.Citations) == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Finalize(), cite.ErrInvalidState, "finalize while open")

	f.send(t, cite.EventDone{})
	waitClosed(t, s)

	require.NoError(t, c.Finalize())
	require.NoError(t, c.Finalize(), "finalize is idempotent")

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "Answer [1]", history[1].Content)
	assert.False(t, history[1].Streaming)
	assert.Nil(t, c.Active())
	_, ok := c.InFlight()
	assert.False(t, ok)
}

func TestConversation_SingleFlight(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
	c.AppendUserMessage("q")

	s, err := c.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)
	f.send(t, cite.EventTextDelta{Delta: "partial"})
	require.Eventually(t, func() bool { return s.Snapshot().Content == "partial" }, time.Second, 5*time.Millisecond)
	historyBefore := c.History()

	_, err = c.BeginStreaming(context.Background(), "job-2")
	assert.ErrorIs(t, err, cite.ErrSingleFlight)

	assert.Equal(t, historyBefore, c.History())
	assert.Equal(t, s, c.Active())
	inflight, ok := c.InFlight()
	require.True(t, ok)
	assert.Equal(t, "partial", inflight.Content)
	assert.Equal(t, "job-1", s.JobID())

	require.NoError(t, c.Cancel())
}

func TestConversation_ScenarioC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policy      cite.CancelPolicy
		wantHistory int
	}{
		{name: "discard drops the answer", policy: cite.CancelDiscard, wantHistory: 1},
		{name: "keep truncated appends the answer", policy: cite.CancelKeepTruncated, wantHistory: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFeed()
			c := cite.NewConversation(f.transport(), citejson.DecodeEvent, cite.WithCancelPolicy(tt.policy))
			c.AppendUserMessage("q")
			s, err := c.BeginStreaming(context.Background(), "job-1")
			require.NoError(t, err)

			f.send(t, cite.EventTextDelta{Delta: "Partial"})
			require.Eventually(t, func() bool { return s.Snapshot().Content == "Partial" }, time.Second, 5*time.Millisecond)

			require.NoError(t, c.Cancel())
			assert.Equal(t, cite.OutcomeCancelled, s.Outcome())
			assert.Nil(t, c.Active())

			history := c.History()
			require.Len(t, history, tt.wantHistory)
			if tt.policy == cite.CancelKeepTruncated {
				last := history[1]
				assert.Equal(t, "Partial", last.Content)
				assert.True(t, last.Truncated)
				assert.False(t, last.Streaming)
			}

			// The slot is free again.
			_, err = c.BeginStreaming(context.Background(), "job-2")
			require.NoError(t, err)
			require.NoError(t, c.Cancel())
		})
	}
}

func TestConversation_CancelAfterCompletion(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
	s, err := c.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)
	f.send(t, cite.EventDone{})
	waitClosed(t, s)

	assert.ErrorIs(t, c.Cancel(), cite.ErrInvalidState)
	require.NoError(t, c.Finalize())
	assert.Len(t, c.History(), 1)
}

func TestConversation_FinalizeErrored(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
	s, err := c.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)
	f.send(t, cite.EventTextDelta{Delta: "Hi"})
	f.send(t, cite.EventError{Code: "E1", Message: "backend failure"})
	waitClosed(t, s)

	require.NoError(t, c.Finalize())
	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Hi", history[0].Content)
	assert.Equal(t, &cite.AnswerError{Code: "E1", Message: "backend failure"}, history[0].Error)
}

func TestConversation_ApplyEvent(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent)

	assert.False(t, c.ApplyEvent(cite.EventTextDelta{Delta: "x"}), "no session bound")

	s, err := c.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, c.ApplyEvent(cite.EventTextDelta{Delta: "direct"}))
	assert.Equal(t, "direct", s.Snapshot().Content)
	require.NoError(t, c.Cancel())
}

func TestConversation_BeginStreamingSubscribeFailure(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("refused")
	tr := &mock.Transport{
		SubscribeFn: func(context.Context, string) (cite.Subscription, error) { return nil, wantErr },
	}
	c := cite.NewConversation(tr, citejson.DecodeEvent)

	_, err := c.BeginStreaming(context.Background(), "job-1")
	assert.ErrorIs(t, err, wantErr)
	assert.Nil(t, c.Active(), "binding is undone")
}

func TestConversation_Stream(t *testing.T) {
	t.Parallel()

	t.Run("completed", func(t *testing.T) {
		t.Parallel()
		f := newFeed()
		c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
		frames := encodeAll(t, cite.EventTextDelta{Delta: "full"}, cite.EventDone{})
		go func() {
			for _, data := range frames {
				f.frames <- data
			}
		}()
		msg, err := c.Stream(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, "full", msg.Content)
		assert.Len(t, c.History(), 1)
	})

	t.Run("context cancelled keeps truncated answer", func(t *testing.T) {
		t.Parallel()
		f := newFeed()
		c := cite.NewConversation(f.transport(), citejson.DecodeEvent, cite.WithCancelPolicy(cite.CancelKeepTruncated))
		ctx, cancel := context.WithCancel(context.Background())
		frame := encodeAll(t, cite.EventTextDelta{Delta: "part"})[0]
		go func() {
			f.frames <- frame
			cancel()
		}()
		_, err := c.Stream(ctx, "job-1")
		assert.ErrorIs(t, err, cite.ErrCancelled)
		require.Len(t, c.History(), 1)
		assert.True(t, c.History()[0].Truncated)
		assert.Nil(t, c.Active())
	})

	t.Run("cleared mid-stream is not reported as kept", func(t *testing.T) {
		t.Parallel()
		f := newFeed()
		c := cite.NewConversation(f.transport(), citejson.DecodeEvent, cite.WithCancelPolicy(cite.CancelKeepTruncated))
		frame := encodeAll(t, cite.EventTextDelta{Delta: "part"})[0]
		go func() {
			f.frames <- frame
			c.Clear()
		}()
		msg, err := c.Stream(context.Background(), "job-1")
		assert.ErrorIs(t, err, cite.ErrCancelled)
		assert.False(t, msg.Truncated)
		assert.False(t, msg.Streaming)
		assert.Empty(t, c.History())
		assert.Nil(t, c.Active())
	})
}

func TestConversation_Ask(t *testing.T) {
	t.Parallel()

	t.Run("submits under the conversation id and streams", func(t *testing.T) {
		t.Parallel()
		f := newFeed()
		c := cite.NewConversation(f.transport(), citejson.DecodeEvent, cite.WithConversationID("conv-1"))
		var gotQuery, gotConv string
		jobs := &mock.JobSubmitter{
			SubmitFn: func(_ context.Context, query, conversationID string) (cite.Job, error) {
				gotQuery, gotConv = query, conversationID
				return cite.Job{ID: "job-1", ConversationID: "conv-2"}, nil
			},
		}
		frames := encodeAll(t, cite.EventTextDelta{Delta: "Yes"}, cite.EventDone{})
		go func() {
			for _, data := range frames {
				f.frames <- data
			}
		}()

		var updates []string
		var mu sync.Mutex
		msg, err := c.Ask(context.Background(), jobs, "Is it covered?", cite.WithUpdateHandler(func(m cite.Message) {
			mu.Lock()
			updates = append(updates, m.Content)
			mu.Unlock()
		}))
		require.NoError(t, err)

		assert.Equal(t, "Is it covered?", gotQuery)
		assert.Equal(t, "conv-1", gotConv)
		assert.Equal(t, "conv-2", c.ID())
		assert.Equal(t, "Yes", msg.Content)
		history := c.History()
		require.Len(t, history, 2)
		assert.Equal(t, cite.RoleUser, history[0].Role)
		assert.Equal(t, "Is it covered?", history[0].Content)
		mu.Lock()
		assert.Contains(t, updates, "Yes")
		mu.Unlock()
	})

	t.Run("submit failure keeps the question", func(t *testing.T) {
		t.Parallel()
		c := cite.NewConversation(newFeed().transport(), citejson.DecodeEvent)
		wantErr := errors.New("server down")
		jobs := &mock.JobSubmitter{
			SubmitFn: func(context.Context, string, string) (cite.Job, error) { return cite.Job{}, wantErr },
		}
		_, err := c.Ask(context.Background(), jobs, "q")
		assert.ErrorIs(t, err, wantErr)
		require.Len(t, c.History(), 1)
		assert.Nil(t, c.Active())
	})

	t.Run("single flight", func(t *testing.T) {
		t.Parallel()
		f := newFeed()
		c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
		_, err := c.BeginStreaming(context.Background(), "job-1")
		require.NoError(t, err)
		jobs := &mock.JobSubmitter{}

		_, err = c.Ask(context.Background(), jobs, "q")
		assert.ErrorIs(t, err, cite.ErrSingleFlight)
		assert.Empty(t, c.History())
		require.NoError(t, c.Cancel())
	})

	t.Run("concurrent asks submit once", func(t *testing.T) {
		t.Parallel()
		f := newFeed()
		c := cite.NewConversation(f.transport(), citejson.DecodeEvent)
		var submits atomic.Int32
		entered := make(chan struct{}, 2)
		release := make(chan struct{})
		jobs := &mock.JobSubmitter{
			SubmitFn: func(_ context.Context, query, _ string) (cite.Job, error) {
				submits.Add(1)
				entered <- struct{}{}
				<-release
				return cite.Job{ID: "job-" + query}, nil
			},
		}

		type result struct {
			msg cite.Message
			err error
		}
		results := make(chan result, 2)
		for _, q := range []string{"a", "b"} {
			go func() {
				msg, err := c.Ask(context.Background(), jobs, q)
				results <- result{msg: msg, err: err}
			}()
		}

		// One Ask holds the slot while it submits; the other is turned away.
		<-entered
		rejected := <-results
		require.ErrorIs(t, rejected.err, cite.ErrSingleFlight)
		history := c.History()
		require.Len(t, history, 1)
		assert.Equal(t, cite.RoleUser, history[0].Role)

		close(release)
		frames := encodeAll(t, cite.EventTextDelta{Delta: "ok"}, cite.EventDone{})
		go func() {
			for _, data := range frames {
				f.frames <- data
			}
		}()
		accepted := <-results
		require.NoError(t, accepted.err)
		assert.Equal(t, "ok", accepted.msg.Content)

		assert.Equal(t, int32(1), submits.Load())
		history = c.History()
		require.Len(t, history, 2)
		assert.Equal(t, cite.RoleUser, history[0].Role)
		assert.Equal(t, cite.RoleAssistant, history[1].Role)
		assert.Equal(t, "ok", history[1].Content)
	})

	t.Run("restore is refused while submitting", func(t *testing.T) {
		t.Parallel()
		c := cite.NewConversation(newFeed().transport(), citejson.DecodeEvent)
		var restoreErr error
		jobs := &mock.JobSubmitter{
			SubmitFn: func(context.Context, string, string) (cite.Job, error) {
				restoreErr = c.Restore(cite.Transcript{})
				return cite.Job{}, errors.New("server down")
			},
		}
		_, err := c.Ask(context.Background(), jobs, "q")
		require.Error(t, err)
		assert.ErrorIs(t, restoreErr, cite.ErrSingleFlight)
		require.Len(t, c.History(), 1)
	})

	t.Run("cleared while submitting", func(t *testing.T) {
		t.Parallel()
		c := cite.NewConversation(newFeed().transport(), citejson.DecodeEvent, cite.WithCancelPolicy(cite.CancelKeepTruncated))
		jobs := &mock.JobSubmitter{
			SubmitFn: func(context.Context, string, string) (cite.Job, error) {
				c.Clear()
				return cite.Job{ID: "job-1", ConversationID: "conv-9"}, nil
			},
		}
		_, err := c.Ask(context.Background(), jobs, "q")
		assert.ErrorIs(t, err, cite.ErrCancelled)
		assert.Empty(t, c.History())
		assert.Empty(t, c.ID())
		assert.Nil(t, c.Active())
	})
}

func TestConversation_IDAndClear(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent, cite.WithConversationID("conv-1"))
	assert.Equal(t, "conv-1", c.ID())
	c.SetID("conv-2")
	assert.Equal(t, "conv-2", c.ID())

	c.AppendUserMessage("q")
	s, err := c.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)

	c.Clear()
	assert.Empty(t, c.ID())
	assert.Empty(t, c.History())
	assert.Nil(t, c.Active())
	assert.Equal(t, cite.OutcomeCancelled, s.Outcome())
}

func TestConversation_TranscriptRestore(t *testing.T) {
	t.Parallel()
	f := newFeed()
	c := cite.NewConversation(f.transport(), citejson.DecodeEvent, cite.WithConversationID("conv-1"))
	c.AppendUserMessage("q")
	tr := c.Transcript()
	assert.Equal(t, "conv-1", tr.ConversationID)
	require.Len(t, tr.Messages, 1)

	other := cite.NewConversation(f.transport(), citejson.DecodeEvent)
	require.NoError(t, other.Restore(tr))
	assert.Equal(t, "conv-1", other.ID())
	assert.Equal(t, tr.Messages, other.History())

	bad := cite.Transcript{Messages: []cite.Message{{ID: "x", Role: "system"}}}
	assert.ErrorIs(t, other.Restore(bad), cite.ErrValidation)
}

func TestConversation_IndependentInstances(t *testing.T) {
	t.Parallel()
	f1, f2 := newFeed(), newFeed()
	c1 := cite.NewConversation(f1.transport(), citejson.DecodeEvent)
	c2 := cite.NewConversation(f2.transport(), citejson.DecodeEvent)

	_, err := c1.BeginStreaming(context.Background(), "job-1")
	require.NoError(t, err)
	_, err = c2.BeginStreaming(context.Background(), "job-2")
	require.NoError(t, err, "single-flight is per conversation")

	require.NoError(t, c1.Cancel())
	require.NoError(t, c2.Cancel())
}
