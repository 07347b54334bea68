package bus

import (
	"sync"

	"github.com/dkeye/callroom/internal/core"
)

// Mailbox is an unbounded FIFO in front of a subscriber channel.
// Pushes never block, so a slow reader cannot stall the producer,
// and the order of pushes is the order of delivery.
type Mailbox struct {
	mu    sync.Mutex
	queue []core.Message

	wake chan struct{}
	out  chan core.Message
	done chan struct{}
	once sync.Once
}

func NewMailbox() *Mailbox {
	m := &Mailbox{
		wake: make(chan struct{}, 1),
		out:  make(chan core.Message),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

// Out is closed after Close.
func (m *Mailbox) Out() <-chan core.Message { return m.out }

func (m *Mailbox) Push(msg core.Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox) run() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		msg := m.queue[0]
		m.queue[0] = core.Message{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- msg:
		case <-m.done:
			return
		}
	}
}

func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.done) })
}
