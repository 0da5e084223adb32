package session

import (
	"encoding/json"

	"drawsync/core"
)

// Server-to-client message types.
const (
	MessageElements  = "elements"
	MessageAppend    = "append"
	MessageViewport  = "viewport"
	MessageFilesMeta = "files-meta"
	MessageFileAdded = "file-added"
	MessageClear     = "clear"
)

// MessageUpdate is the only client-to-server message honored on the
// WebSocket channel: a full, self-merged scene snapshot.
const MessageUpdate = "update"

type (
	// Message is one server-to-client frame, a tagged union over Type.
	Message struct {
		Type     string                      `json:"type"`
		Elements []core.Element              `json:"elements,omitempty"`
		AppState json.RawMessage             `json:"appState,omitempty"`
		Viewport *core.Camera                `json:"viewport,omitempty"`
		Files    map[string]core.AssetRecord `json:"files,omitempty"`
		File     *core.AssetRecord           `json:"file,omitempty"`
	}

	// ClientMessage is an inbound frame from an editing client.
	ClientMessage struct {
		Type     string         `json:"type"`
		Elements []core.Element `json:"elements"`
	}
)

func ElementsMessage(elements []core.Element, appState json.RawMessage) Message {
	return Message{Type: MessageElements, Elements: elements, AppState: appState}
}

func AppendMessage(delta []core.Element) Message {
	return Message{Type: MessageAppend, Elements: delta}
}

func ViewportMessage(cam core.Camera) Message {
	return Message{Type: MessageViewport, Viewport: &cam}
}

func FilesMetaMessage(files map[string]core.AssetRecord) Message {
	return Message{Type: MessageFilesMeta, Files: files}
}

func FileAddedMessage(file core.AssetRecord) Message {
	return Message{Type: MessageFileAdded, File: &file}
}

func ClearMessage() Message {
	return Message{Type: MessageClear}
}
