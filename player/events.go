package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/xmedia/xmedia/log"
)

// Event is one engine notification. The set is closed: only the types below implement it.
type Event interface {
	event()
}

// PlayingChanged reports whether media is actually advancing.
type PlayingChanged struct{ Playing bool }

// PhaseChanged reports a loading phase transition.
type PhaseChanged struct{ Phase Phase }

// TracksChanged carries the new track snapshot.
type TracksChanged struct{ Tracks Tracks }

// ErrorEvent reports a fatal playback failure.
type ErrorEvent struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// FirstFrameRendered fires when the first frame after a load or seek is shown.
type FirstFrameRendered struct{}

// TransferEnded fires when the engine finishes reading one resource through its data path.
type TransferEnded struct{ URL string }

func (PlayingChanged) event()     {}
func (PhaseChanged) event()       {}
func (TracksChanged) event()      {}
func (ErrorEvent) event()         {}
func (FirstFrameRendered) event() {}
func (TransferEnded) event()      {}

// mpvMessage is one line read from the IPC socket: either a reply or an event.
type mpvMessage struct {
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	FileError string          `json:"file_error"`
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
}

// observedProperties are registered on the listener's own connection, since mpv
// scopes observers to the client that created them.
var observedProperties = []string{
	"pause",
	"eof-reached",
	"paused-for-cache",
	"duration",
	"track-list",
	"idle-active",
}

// eventListener reads mpv events over a dedicated persistent connection.
type eventListener struct {
	socketPath string
	callback   func(mpvMessage)
	conn       net.Conn
	mu         sync.Mutex
	done       chan struct{}
}

func newEventListener(socketPath string, callback func(mpvMessage)) *eventListener {
	return &eventListener{
		socketPath: socketPath,
		callback:   callback,
		done:       make(chan struct{}),
	}
}

// start subscribes to the observed properties and starts the read loop.
func (el *eventListener) start() error {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.conn != nil {
		return nil
	}

	conn, err := net.Dial("unix", el.socketPath)
	if err != nil {
		return fmt.Errorf("event listener connect: %w", err)
	}

	for i, name := range observedProperties {
		payload, err := json.Marshal(ipcCommand{Command: []any{"observe_property", i + 1, name}})
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("marshal observe %s: %w", name, err)
		}
		if _, err := conn.Write(append(payload, '\n')); err != nil {
			_ = conn.Close()
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}

	el.conn = conn
	go el.readLoop(conn)

	log.Debugf("mpv event listener started on %s", el.socketPath)
	return nil
}

func (el *eventListener) stop() {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.conn == nil {
		return
	}
	_ = el.conn.Close()
	el.conn = nil
	<-el.done
}

func (el *eventListener) readLoop(conn net.Conn) {
	defer close(el.done)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, readBufSize), maxLineSize)

	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event == "" {
			continue
		}
		el.callback(msg)
	}

	if err := scanner.Err(); err != nil {
		log.Debugf("mpv event listener stopped: %v", err)
	}
}
