package models

// StreamEventType discriminates UnifiedStreamEvent variants. Every
// provider-specific stream adapter normalises its wire framing to this
// alphabet; subscribers never see provider event names.
type StreamEventType string

const (
	EventTextDelta      StreamEventType = "text_delta"
	EventThinkingStart  StreamEventType = "thinking_start"
	EventThinkingDelta  StreamEventType = "thinking_delta"
	EventThinkingEnd    StreamEventType = "thinking_end"
	EventToolStart      StreamEventType = "tool_start"
	EventToolInputDelta StreamEventType = "tool_input_delta"
	EventToolComplete   StreamEventType = "tool_complete"
	EventToolResult     StreamEventType = "tool_result"
	EventUsage          StreamEventType = "usage"
	EventComplete       StreamEventType = "complete"
	EventError          StreamEventType = "error"
)

// UnifiedStreamEvent is one element of the normalised stream. Within a
// turn, events reach subscribers in the order the adapter produced them.
type UnifiedStreamEvent struct {
	Type StreamEventType `json:"type"`

	// Text carries the delta for text/thinking events.
	Text string `json:"text,omitempty"`

	// Tool fields. InputDelta holds a partial JSON fragment for
	// tool_input_delta; Call is the finalised call for tool_complete.
	ToolID     string    `json:"tool_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	InputDelta string    `json:"input_delta,omitempty"`
	Call       *ToolCall `json:"call,omitempty"`

	// Result is set for tool_result events emitted by the orchestrator.
	Result *ContentBlock `json:"result,omitempty"`

	// Usage deltas are folded into the turn total by the provider's stream
	// loop; streaming.AccumulateUsage sums every bucket except
	// input_tokens, where the latest non-zero value wins.
	Usage *UsageStats `json:"usage,omitempty"`

	// StopReason is set on complete events.
	StopReason StopReason `json:"stop_reason,omitempty"`

	// Error fields.
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// StreamSender is the bounded sink a provider writes unified events to.
// Send returns false when the receiver has gone away; producers stop
// emitting once that happens.
type StreamSender interface {
	Send(ev UnifiedStreamEvent) bool
}

// ChanSender adapts a buffered channel to StreamSender. Events are
// dropped only when the channel has been closed by the receiver.
type ChanSender struct {
	C      chan UnifiedStreamEvent
	closed bool
}

// NewChanSender returns a sender over a channel with the given capacity.
func NewChanSender(capacity int) *ChanSender {
	if capacity <= 0 {
		capacity = 100
	}
	return &ChanSender{C: make(chan UnifiedStreamEvent, capacity)}
}

// Send delivers an event, blocking when the subscriber lags.
func (s *ChanSender) Send(ev UnifiedStreamEvent) bool {
	if s.closed {
		return false
	}
	defer func() {
		if recover() != nil {
			s.closed = true
		}
	}()
	s.C <- ev
	return !s.closed
}

// Close closes the underlying channel.
func (s *ChanSender) Close() {
	if !s.closed {
		s.closed = true
		close(s.C)
	}
}
