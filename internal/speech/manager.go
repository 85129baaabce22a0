// Package speech turns finished answers into audio. A single worker
// goroutine drains a queue through a text-to-speech synthesizer and an
// audio player, so playback never blocks the orchestration path.
package speech

import (
	"context"
	"strings"
	"sync"

	"archon/internal/config"
	"archon/internal/logging"
)

// Synthesizer converts text to audio bytes. The HTTP TTS client
// satisfies this.
type Synthesizer interface {
	Synthesize(ctx context.Context, credential, text string) ([]byte, error)
}

// Player is the audio sink. Play blocks until playback finishes or the
// context is cancelled; Stop interrupts any in-progress playback.
type Player interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

type item struct {
	text       string
	credential string
}

// Manager owns the speech queue and its worker. Construct with
// NewManager and release with Close.
type Manager struct {
	synth    Synthesizer
	player   Player
	timeouts config.Timeouts

	mu      sync.Mutex
	queue   []item
	stopped bool

	wake       chan struct{}
	interacted chan struct{}
	once       sync.Once
	done       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager starts the playback worker. Playback stays gated until
// MarkInteracted is called: browsers and terminals alike should not
// start talking before the user has typed anything.
func NewManager(synth Synthesizer, player Player, timeouts config.Timeouts) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		synth:      synth,
		player:     player,
		timeouts:   timeouts,
		wake:       make(chan struct{}, 1),
		interacted: make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	go m.run()
	return m
}

// MarkInteracted unblocks playback. Safe to call repeatedly.
func (m *Manager) MarkInteracted() {
	m.once.Do(func() { close(m.interacted) })
}

// Enqueue queues text for playback. Content that reads badly aloud is
// skipped: fenced code blocks and structured review output.
func (m *Manager) Enqueue(text, credential string) {
	if !Speakable(text) {
		logging.Speech("skipping unspeakable content (%d chars)", len(text))
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, item{text: text, credential: credential})
	depth := len(m.queue)
	m.mu.Unlock()

	logging.Speech("enqueued %d chars, queue depth %d", len(text), depth)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Stop flushes the queue and halts current playback. The worker keeps
// running and will play anything enqueued afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	flushed := len(m.queue)
	m.queue = nil
	m.mu.Unlock()

	m.player.Stop()
	if flushed > 0 {
		logging.Speech("flushed %d queued items", flushed)
	}
}

// Close flushes the queue and shuts the worker down.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()

	m.cancel()
	m.player.Stop()
	<-m.done
	return nil
}

func (m *Manager) run() {
	defer close(m.done)

	// Gate on first interaction, unless we shut down first.
	select {
	case <-m.interacted:
	case <-m.ctx.Done():
		return
	}

	for {
		next, ok := m.dequeue()
		if !ok {
			select {
			case <-m.wake:
				continue
			case <-m.ctx.Done():
				return
			}
		}
		m.speak(next)
	}
}

func (m *Manager) dequeue() (item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return item{}, false
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next, true
}

// speak synthesizes and plays one item. Failures are logged and the
// item is dropped; the queue keeps moving.
func (m *Manager) speak(it item) {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeouts.SpeechTimeout)
	defer cancel()

	audio, err := m.synth.Synthesize(ctx, it.credential, it.text)
	if err != nil {
		logging.SpeechWarn("synthesis failed, skipping item: %v", err)
		return
	}
	if err := m.player.Play(m.ctx, audio); err != nil {
		logging.SpeechWarn("playback failed: %v", err)
	}
}

// Speakable reports whether text is worth sending to the synthesizer.
// Code blocks and architect review output are display-only.
func Speakable(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "```") {
		return false
	}
	for _, marker := range []string{
		"CRITICAL ISSUES",
		"POTENTIAL PROBLEMS",
		"ARCHITECT VERDICT",
		"Revision Attempt #",
	} {
		if strings.Contains(trimmed, marker) {
			return false
		}
	}
	return true
}
