package server

// Message is the JSON envelope pushed to monitor clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// StatusBody is the JSON body of every control-port reply.
type StatusBody struct {
	Message string `json:"message"`
}
