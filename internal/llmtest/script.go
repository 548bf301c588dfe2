// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/casualjim/agora/llm"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
)

type Reply struct {
	Text string
	Err  error
}

// Text replies with s.
func Text(s string) Reply {
	return Reply{Text: s}
}

// JSON replies with v encoded as JSON.
func JSON(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Text: string(b)}
}

// Fail replies with an *llm.Error of the given kind.
func Fail(kind llm.Kind) Reply {
	return Reply{Err: &llm.Error{Kind: kind, Op: "generate", Err: errors.New("scripted failure")}}
}

// Gateway replays replies in order, or computes them with a responder.
type Gateway struct {
	mu        sync.Mutex
	replies   []Reply
	responder func(llm.Request) Reply
	calls     []llm.Request
}

var _ llm.Gateway = (*Gateway)(nil)

// New returns a gateway answering with replies in order. Once they run out
// every call fails with InvalidResponse.
func New(replies ...Reply) *Gateway {
	return &Gateway{replies: replies}
}

// Responder returns a gateway computing each reply from the request.
// Safe for concurrent callers whose order is not deterministic.
func Responder(fn func(llm.Request) Reply) *Gateway {
	return &Gateway{responder: fn}
}

// Unreachable returns a gateway that fails every call with ConnectionFailed.
func Unreachable() *Gateway {
	return Responder(func(llm.Request) Reply { return Fail(llm.ConnectionFailed) })
}

func (g *Gateway) Generate(_ context.Context, prompt string, options ...opts.Option[llm.Request]) (string, error) {
	req, err := llm.NewRequest(prompt, options...)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.calls = append(g.calls, req)
	var reply Reply
	switch {
	case g.responder != nil:
		g.mu.Unlock()
		reply = g.responder(req)
	case len(g.replies) > 0:
		reply = g.replies[0]
		g.replies = g.replies[1:]
		g.mu.Unlock()
	default:
		g.mu.Unlock()
		reply = Reply{Err: &llm.Error{Kind: llm.InvalidResponse, Op: "generate", Err: errors.New("script exhausted")}}
	}
	return reply.Text, reply.Err
}

// Calls returns every request received so far.
func (g *Gateway) Calls() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.calls...)
}
