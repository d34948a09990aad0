package pingback

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JakeFAU/inkpress/internal/events"
	"github.com/JakeFAU/inkpress/internal/queue/memory"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

type recordingCaller struct {
	mu    sync.Mutex
	calls [][]any
	err   error
}

func (c *recordingCaller) Call(_ context.Context, url, method string, args ...any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]any{url, method}, args...))
	return "ok", c.err
}

type blockAll struct{}

func (blockAll) Check(string) error { return errors.New("blocked") }

func TestSender_Discover(t *testing.T) {
	t.Parallel()
	header := http.Header{}
	header.Set("X-Pingback", "http://t.test/xmlrpc")
	s := NewSender(&stubFetcher{page: Page{Header: header, PingbackLink: "http://t.test/other"}}, nil, nil, nil)
	endpoint, err := s.Discover(context.Background(), "http://t.test/post")
	require.NoError(t, err)
	assert.Equal(t, "http://t.test/xmlrpc", endpoint, "header wins over link element")

	s = NewSender(&stubFetcher{page: Page{PingbackLink: "http://t.test/other"}}, nil, nil, nil)
	endpoint, err = s.Discover(context.Background(), "http://t.test/post")
	require.NoError(t, err)
	assert.Equal(t, "http://t.test/other", endpoint)

	s = NewSender(&stubFetcher{}, nil, nil, nil)
	_, err = s.Discover(context.Background(), "http://t.test/post")
	assert.ErrorIs(t, err, ErrNoEndpoint)
	assert.True(t, IsPermanent(err))

	s = NewSender(&stubFetcher{err: &StatusError{Code: http.StatusServiceUnavailable}}, nil, nil, nil)
	_, err = s.Discover(context.Background(), "http://t.test/post")
	assert.False(t, IsPermanent(err))
}

func TestSender_Send(t *testing.T) {
	t.Parallel()
	page := Page{PingbackLink: "http://t.test/xmlrpc"}
	job := Job{Source: "http://blog.test/post/1", Target: "http://t.test/post"}

	caller := &recordingCaller{}
	s := NewSender(&stubFetcher{page: page}, caller, nil, nil)
	require.NoError(t, s.Send(context.Background(), job))
	require.Len(t, caller.calls, 1)
	assert.Equal(t, []any{"http://t.test/xmlrpc", "pingback.ping", job.Source, job.Target}, caller.calls[0])

	caller = &recordingCaller{err: xmlrpc.NewFault(48, "already registered")}
	s = NewSender(&stubFetcher{page: page}, caller, nil, nil)
	assert.NoError(t, s.Send(context.Background(), job))

	caller = &recordingCaller{err: xmlrpc.NewFault(17, "no link")}
	s = NewSender(&stubFetcher{page: page}, caller, nil, nil)
	assert.True(t, IsPermanent(s.Send(context.Background(), job)))

	caller = &recordingCaller{err: xmlrpc.NewFault(50, "upstream")}
	s = NewSender(&stubFetcher{page: page}, caller, nil, nil)
	err := s.Send(context.Background(), job)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	fetcher := &stubFetcher{page: page}
	s = NewSender(fetcher, &recordingCaller{}, nil, blockAll{})
	assert.True(t, IsPermanent(s.Send(context.Background(), job)))
	assert.Empty(t, fetcher.urls, "blocked targets are never fetched")
}

type flakySender struct {
	mu    sync.Mutex
	fails int
	err   error
	sent  []Job
}

func (f *flakySender) Send(_ context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("transient")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, job)
	return nil
}

func (f *flakySender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type results struct {
	mu  sync.Mutex
	got []string
}

func (r *results) observe(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, result)
}

func (r *results) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestWorker_RetriesThenSends(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := memory.NewQueue[Job](4)
	sender := &flakySender{fails: 2}
	res := &results{}
	w := NewWorker(q, sender, WorkerConfig{MaxAttempts: 3, Backoff: time.Millisecond}, res.observe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Enqueue(ctx, Job{Source: "s", Target: "t"}))
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{ResultSent}, res.snapshot())

	cancel()
	<-done
}

func TestWorker_GivesUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := memory.NewQueue[Job](4)
	sender := &flakySender{fails: 10}
	res := &results{}
	w := NewWorker(q, sender, WorkerConfig{MaxAttempts: 2, Backoff: time.Millisecond}, res.observe, nil)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{Source: "s", Target: "t1"}))
	permanent := &flakySender{err: Permanent(ErrNoEndpoint)}
	require.NoError(t, q.Enqueue(ctx, Job{Source: "s", Target: "t2"}))
	q.Close()

	w.Run(ctx)
	assert.Equal(t, []string{ResultFailed, ResultFailed}, res.snapshot())
	assert.Equal(t, 6, sender.fails, "two jobs, two attempts each")

	q2 := memory.NewQueue[Job](1)
	require.NoError(t, q2.Enqueue(ctx, Job{Source: "s", Target: "t"}))
	q2.Close()
	res2 := &results{}
	NewWorker(q2, permanent, WorkerConfig{}, res2.observe, nil).Run(ctx)
	assert.Equal(t, []string{ResultSkipped}, res2.snapshot())
}

type fixedLinks struct{}

func (fixedLinks) Permalink(blogID, postType, postURL string) string {
	return "http://blog.test/" + blogID + "/" + postType + "/" + postURL
}

func TestSink_EnqueuesExternalLinks(t *testing.T) {
	t.Parallel()
	q := memory.NewQueue[Job](1)
	res := &results{}
	sink := NewSink(q, fixedLinks{}, res.observe, nil)

	err := sink.Consume(context.Background(), []events.Event{
		{Type: events.PostCreated, BlogID: "b", PostID: 1, Content: `<a href="http://x.test/">x</a>`},
		{
			Type: events.PostPublished, BlogID: "b", PostID: 1, URL: "2024/01/01/hi", Note: "post",
			Content: `<a href="http://x.test/">x</a> <a href="http://y.test/">y</a> <a href="/b/post/other">self</a>`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Job{Source: "http://blog.test/b/post/2024/01/01/hi", Target: "http://x.test/"}, job)
	assert.Equal(t, []string{ResultSkipped}, res.snapshot(), "second link dropped on a full queue")
	require.NoError(t, sink.Close(context.Background()))
}
