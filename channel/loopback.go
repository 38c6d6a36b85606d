package channel

import (
	"log/slog"
	"sync"
)

// LoopbackSDK is an in-process vendor engine. It records every loaded document and
// logs it, which makes it a dry-run target when no real engine is attached.
type LoopbackSDK struct {
	mu       sync.Mutex
	state    ConnectionState
	connect  ConnectionState
	nextID   int
	loaded   map[int]string
	played   []string
	logger   *slog.Logger
	failPlay error
}

// NewLoopbackSDK creates a loopback engine that connects on the first Connect call.
func NewLoopbackSDK(logger *slog.Logger) *LoopbackSDK {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopbackSDK{
		state:   StateDisconnected,
		connect: StateConnected,
		loaded:  make(map[int]string),
		logger:  logger.With("component", "loopback-sdk"),
	}
}

// SetState forces the connection state.
func (l *LoopbackSDK) SetState(s ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// SetConnectResult sets the state a later Connect call moves to.
func (l *LoopbackSDK) SetConnectResult(s ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connect = s
}

// FailPlay makes PlayEffect return err until cleared with nil.
func (l *LoopbackSDK) FailPlay(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failPlay = err
}

// Connect implements SDK
func (l *LoopbackSDK) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = l.connect
	return nil
}

// ConnectionState implements SDK
func (l *LoopbackSDK) ConnectionState() ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LoadPatternJSON implements SDK
func (l *LoopbackSDK) LoadPatternJSON(doc string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnected {
		return 0, &SDKError{Code: CodeNotConnected, Op: "load_pattern_json"}
	}
	l.nextID++
	l.loaded[l.nextID] = doc
	return l.nextID, nil
}

// PlayEffect implements SDK
func (l *LoopbackSDK) PlayEffect(patternID int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failPlay != nil {
		return 0, l.failPlay
	}
	doc, ok := l.loaded[patternID]
	if !ok {
		return 0, &SDKError{Code: -1, Op: "play_effect"}
	}
	l.played = append(l.played, doc)
	l.logger.Info("Pattern", "pattern_id", patternID, "document", doc)
	return len(l.played), nil
}

// UnloadPattern implements SDK
func (l *LoopbackSDK) UnloadPattern(patternID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.loaded[patternID]; !ok {
		return &SDKError{Code: -1, Op: "unload_pattern"}
	}
	delete(l.loaded, patternID)
	return nil
}

// Played returns the documents played so far.
func (l *LoopbackSDK) Played() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.played...)
}

// Loaded returns the number of patterns still loaded.
func (l *LoopbackSDK) Loaded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loaded)
}
