package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/livewatch-cli/livewatch/log"
)

// observedProperties are registered on the listener connection; mpv only
// reports property changes to the client that asked for them.
var observedProperties = []string{
	"pause",
	"idle-active",
	"frame-drop-count",
}

// eventListener reads newline-delimited events from a persistent mpv connection.
type eventListener struct {
	conn      net.Conn
	onMessage func(ipcMessage)
	done      chan struct{}
	stopOnce  sync.Once
}

// startEventListener connects to the socket, subscribes to observedProperties and starts the read loop.
func startEventListener(socketPath string, onMessage func(ipcMessage)) (*eventListener, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("event listener connect: %w", err)
	}

	encoder := json.NewEncoder(conn)
	for i, name := range observedProperties {
		cmd := ipcCommand{Command: []any{"observe_property", i + 1, name}}
		if err := encoder.Encode(cmd); err != nil {
			conn.Close()
			return nil, fmt.Errorf("observe %s: %w", name, err)
		}
	}

	el := &eventListener{
		conn:      conn,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
	go el.readLoop()

	log.Debugf("mpv event listener started on %s", socketPath)
	return el, nil
}

// Stop closes the connection and waits for the read loop to exit.
func (el *eventListener) Stop() {
	el.stopOnce.Do(func() {
		_ = el.conn.Close()
	})
	<-el.done
}

func (el *eventListener) readLoop() {
	defer close(el.done)

	scanner := bufio.NewScanner(el.conn)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event == "" {
			continue
		}
		el.onMessage(msg)
	}

	if err := scanner.Err(); err != nil {
		log.Debugf("mpv event listener stopped: %v", err)
	}
}
