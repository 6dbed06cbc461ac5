package mqtt

import "log/slog"

// pendingMsg is a serialized value waiting for the broker to come back.
type pendingMsg struct {
	topic   string
	payload []byte
}

// pendingBuffer holds the latest unsent payload per topic while the broker
// is unreachable. A newer value for a topic replaces the older one in place,
// since only the current value of a path matters once the link returns.
// Not safe for concurrent use; caller must synchronize.
type pendingBuffer struct {
	order    []string
	latest   map[string][]byte
	capacity int
	dropped  int
	logger   *slog.Logger
}

func newPendingBuffer(capacity int, logger *slog.Logger) *pendingBuffer {
	return &pendingBuffer{
		latest:   make(map[string][]byte),
		capacity: capacity,
		logger:   logger,
	}
}

// put stores payload for topic. When the buffer already holds capacity
// distinct topics, a new topic is dropped.
func (b *pendingBuffer) put(topic string, payload []byte) {
	if _, ok := b.latest[topic]; ok {
		b.latest[topic] = payload
		return
	}
	if len(b.order) >= b.capacity {
		if b.dropped == 0 {
			b.logger.Warn("mqtt buffer full, dropping new topics", "capacity", b.capacity)
		}
		b.dropped++
		return
	}
	b.order = append(b.order, topic)
	b.latest[topic] = payload
}

// drain returns the buffered messages in first-seen order and empties the buffer.
func (b *pendingBuffer) drain() []pendingMsg {
	if len(b.order) == 0 {
		return nil
	}
	out := make([]pendingMsg, 0, len(b.order))
	for _, topic := range b.order {
		out = append(out, pendingMsg{topic: topic, payload: b.latest[topic]})
	}
	b.order = nil
	b.latest = make(map[string][]byte)
	b.dropped = 0
	return out
}

func (b *pendingBuffer) len() int {
	return len(b.order)
}
