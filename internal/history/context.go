package history

import (
	"github.com/banterworks/banter/internal/providers"
	"github.com/banterworks/banter/internal/tokens"
)

// Context is the rolling conversation history of one channel. The token
// budget is fixed at construction: the model's context window minus the
// generation reserve, the system prompt cost, and the tool definition cost.
// History is ephemeral; when the cache entry holding a Context expires, the
// conversation it held is gone.
type Context struct {
	counter tokens.Counter
	queue   *Queue[providers.Message]
}

func NewContext(counter tokens.Counter, budget int) *Context {
	return &Context{
		counter: counter,
		queue:   NewQueue[providers.Message](budget),
	}
}

// Append records one message, costed at insertion time.
func (c *Context) Append(m providers.Message) {
	c.queue.Enqueue(m, c.counter.CountMessage(m))
}

// AppendAll records a batch of messages with a single eviction pass, so
// readers never see a partially committed turn.
func (c *Context) AppendAll(msgs []providers.Message) {
	entries := make([]Entry[providers.Message], len(msgs))
	for i, m := range msgs {
		entries[i] = Entry[providers.Message]{Item: m, Cost: c.counter.CountMessage(m)}
	}
	c.queue.EnqueueAll(entries)
}

// History returns the retained messages in chronological order, oldest
// first, ready to be used verbatim as the prior-turns segment of a request.
func (c *Context) History() []providers.Message {
	return c.queue.Snapshot()
}

func (c *Context) TokenBudget() int { return c.queue.Budget() }

func (c *Context) TokenSize() int { return c.queue.TokenSize() }
