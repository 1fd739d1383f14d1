package bridge

import (
	"fmt"

	"github.com/yegors/co-hud/internal/recognition"
	"github.com/yegors/co-hud/internal/websocket"
)

// instance is a recognizer living in a page
type instance struct {
	id     string
	bridge *Bridge
	peer   websocket.Peer
	opts   recognition.Options
	sink   recognition.Sink
}

func (i *instance) Start() error {
	return i.command(websocket.MessageTypeRecognizerStart, false)
}

func (i *instance) Stop() error {
	return i.command(websocket.MessageTypeRecognizerStop, false)
}

// Abort cancels recognition and releases the instance
func (i *instance) Abort() error {
	return i.command(websocket.MessageTypeRecognizerAbort, true)
}

func (i *instance) Language() string {
	return i.opts.Language
}

func (i *instance) command(messageType string, release bool) error {
	b := i.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.instances[i.id]; !live || b.peer == nil || b.peer.ID() != i.peer.ID() {
		return ErrNoClient
	}
	if release {
		delete(b.instances, i.id)
	}

	if !i.peer.SendMessage(&websocket.Message{
		Type: messageType,
		Data: map[string]any{"instance_id": i.id},
	}) {
		return fmt.Errorf("failed to send %s: client buffer full or closed", messageType)
	}
	return nil
}
