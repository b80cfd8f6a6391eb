package core

// StopToken is the control token that switches every line off.
const StopToken = "9"

// Command is a control token that arrived from somewhere other than the HTTP
// control port (MQTT, cron). The loop resolves it exactly like ?key=<token>.
type Command struct {
	Token  string
	Source string
}

// CommandChannel carries remote commands into the loop. The loop only ever
// receives from it without blocking, one command per iteration at most.
type CommandChannel chan Command

// TrySend queues cmd without blocking. It reports false when the queue is full.
func (c CommandChannel) TrySend(cmd Command) bool {
	select {
	case c <- cmd:
		return true
	default:
		return false
	}
}
