// bus.go
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Any comparable value works;
// services use strings for names and ints for instance ids.
type Token = any

// Wildcard tokens recognised in subscription patterns.
const (
	WildcardOne = "+" // matches exactly one level
	WildcardAll = "#" // matches the rest of the path, zero or more levels
)

// Topic is an ordered token path.
type Topic []Token

func (t Topic) Len() int       { return len(t) }
func (t Topic) At(i int) Token { return t[i] }

// T builds a Topic from tokens. It panics on a non-comparable token so a
// malformed topic fails at construction, not deep inside the trie.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		mustComparable(tok)
	}
	return Topic(tokens)
}

func mustComparable(tok Token) {
	defer func() {
		if recover() != nil {
			panic("bus: topic token is not comparable")
		}
	}()
	var probe Token = tok
	_ = probe == tok
}

func isWildcard(tok Token) (string, bool) {
	if s, ok := tok.(string); ok && (s == WildcardOne || s == WildcardAll) {
		return s, true
	}
	return "", false
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the message carries a reply topic.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	bus   *Bus
	conn  *Connection // owner
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.RWMutex
	root     *node
	qLen     int
	replySeq uint32
}

// NewBus creates a bus whose subscriptions buffer queueLen messages each.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// NewMessage builds a message for this bus.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// addSubscription inserts a subscription into the trie and delivers any
// retained messages its pattern matches.
func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	b.collectRetained(b.root, topic, 0, sub)
}

// Publish delivers a message to every subscription whose pattern matches its
// topic, then stores or clears the retained copy.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deliver(b.root, msg, 0)

	if msg.Retained {
		if msg.Payload == nil {
			b.clearRetained(msg.Topic)
		} else {
			b.storeRetained(msg)
		}
	}
}

// unsubscribe detaches sub from its trie node and prunes the walked path.
func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[t]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	prune(stack, topic)
}

// -----------------------------------------------------------------------------
// Matching
// -----------------------------------------------------------------------------

// deliver walks topic levels from idx, fanning out into exact, "+" and "#"
// branches of the trie.
func (b *Bus) deliver(n *node, msg *Message, idx int) {
	if idx == len(msg.Topic) {
		for _, sub := range n.subs {
			b.push(sub, msg)
		}
		// "#" matches zero remaining levels.
		if hash := n.children[WildcardAll]; hash != nil {
			for _, sub := range hash.subs {
				b.push(sub, msg)
			}
		}
		return
	}

	if hash := n.children[WildcardAll]; hash != nil {
		for _, sub := range hash.subs {
			b.push(sub, msg)
		}
	}

	tok := msg.Topic[idx]
	if _, wild := isWildcard(tok); !wild {
		if child := n.children[tok]; child != nil {
			b.deliver(child, msg, idx+1)
		}
	}
	if plus := n.children[WildcardOne]; plus != nil {
		b.deliver(plus, msg, idx+1)
	}
}

// collectRetained delivers retained messages matching a new subscription's
// pattern, walking concrete trie paths against the pattern from idx.
func (b *Bus) collectRetained(n *node, pattern Topic, idx int, sub *Subscription) {
	if idx == len(pattern) {
		if n.retained != nil {
			b.push(sub, n.retained)
		}
		return
	}

	tok := pattern[idx]
	if w, wild := isWildcard(tok); wild {
		if w == WildcardAll {
			b.collectSubtree(n, sub)
			return
		}
		for _, child := range n.children {
			b.collectRetained(child, pattern, idx+1, sub)
		}
		return
	}
	if child := n.children[tok]; child != nil {
		b.collectRetained(child, pattern, idx+1, sub)
	}
}

// collectSubtree delivers every retained message at n and below, n included.
func (b *Bus) collectSubtree(n *node, sub *Subscription) {
	if n.retained != nil {
		b.push(sub, n.retained)
	}
	for _, child := range n.children {
		b.collectSubtree(child, sub)
	}
}

// push enqueues for one subscription, dropping the oldest queued message when
// the queue is full so fresh state wins.
func (b *Bus) push(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- msg:
	default:
	}
}

// storeRetained records msg at its exact topic path, creating nodes as needed.
func (b *Bus) storeRetained(msg *Message) {
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.retained = msg
}

// clearRetained removes the retained message at topic and prunes empty nodes.
func (b *Bus) clearRetained(topic Topic) {
	n := b.root
	var stack []*node
	for _, tok := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}
	n.retained = nil
	prune(stack, topic)
}

// prune removes empty trie nodes bottom-up along the walked path.
func prune(stack []*node, topic Topic) {
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := topic[i]
		child := parent.children[key]
		if child != nil && len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection opens a named connection on the bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{
		bus: b,
		id:  id,
	}
}

// NewMessage builds a message for this connection's bus.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish forwards msg to the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe opens a subscription tracked by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		bus:   c.bus,
		conn:  c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect tears down every subscription the connection still owns.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request / Reply
// -----------------------------------------------------------------------------

// Reply publishes a response on the ReplyTo topic of req. Messages published
// outside Request/RequestWait carry no ReplyTo and are ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.bus.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

// Request stamps msg with a fresh ReplyTo topic, subscribes to it, and
// publishes the request. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = c.replyTopic()
	sub := c.Subscribe(msg.ReplyTo)
	c.bus.Publish(msg)
	return sub
}

// RequestWait performs Request and blocks for a single reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case reply, ok := <-sub.Channel():
		if !ok {
			return nil, errors.New("bus: subscription closed")
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Connection) replyTopic() Topic {
	seq := atomic.AddUint32(&c.bus.replySeq, 1)
	return Topic{"reply", c.id, int(seq)}
}
