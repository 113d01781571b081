package llm

// EventKind classifies one step of the agentic loop, observed by the
// runtime so it can mirror progress onto the WebSocket fan-out.
type EventKind int

const (
	EventTurnStart EventKind = iota // one API call about to start
	EventTurnDone                   // one API call finished
	EventToolStart                  // about to execute a tool
	EventToolDone                   // tool execution completed
	EventLoopDone                   // loop finished (non-tool_use stop reason or max turns)
	EventError                      // unrecoverable error
)

// Event carries data for one step of the agentic loop.
type Event struct {
	Kind         EventKind
	StopReason   string
	InputTokens  int64
	OutputTokens int64
	ToolUseID    string
	ToolName     string
	ToolInput    map[string]any
	ToolResult   string
	ToolIsError  bool
	Err          error
}

// EventFunc is the observer callback wired to the WebSocket fan-out.
type EventFunc func(Event)
