package chat

import (
	"context"
	"errors"

	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/provider"
)

// streamHandle is one response in flight. Writes from its goroutine are
// applied only while it is the session's active stream.
type streamHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	model  *provider.Handle
	// assistant is the index of the message receiving text, -1 until the
	// first delta arrives
	assistant int
}

// startResponseLocked cancels the active stream, if any, and starts a new
// one for the current messages.
func (s *Session) startResponseLocked() {
	s.abortLocked()

	if s.model == nil || s.model.Client == nil {
		s.setStatusLocked(StatusReady)
		s.emit(Event{Type: EventError, Err: ErrNoModelSelected})
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	h := &streamHandle{ctx: ctx, cancel: cancel, model: s.model, assistant: -1}
	s.stream = h
	s.setStatusLocked(StatusResponding)

	req := &llm.ChatRequest{
		Model:    s.model.ModelID,
		System:   s.systemPrompt,
		Messages: s.store.snapshot(),
		Stream:   true,
	}
	if s.tools.Len() > 0 {
		req.Tools = s.tools.Schemas()
		req.ToolChoice = "auto"
	}

	s.wg.Add(1)
	go s.runStream(h, req)
}

// abortLocked cancels the active stream. Safe to call when idle.
func (s *Session) abortLocked() {
	if s.stream == nil {
		return
	}
	s.stream.cancel()
	s.stream = nil
	s.toolDisplay = ""
}

func (s *Session) runStream(h *streamHandle, req *llm.ChatRequest) {
	defer s.wg.Done()

	events, err := h.model.Client.ChatStream(h.ctx, req)
	if err != nil {
		s.finishStream(h, err)
		return
	}

	for ev := range events {
		switch ev.Type {
		case llm.EventTextDelta:
			if ev.Text == "" {
				continue
			}
			if !s.appendDelta(h, ev.Text) {
				return
			}
		case llm.EventToolCall:
			if ev.ToolCall == nil {
				continue
			}
			if err := s.callTool(h, *ev.ToolCall); err != nil {
				s.finishStream(h, err)
				return
			}
		case llm.EventError:
			s.finishStream(h, ev.Err)
			return
		}
	}
	s.finishStream(h, nil)
}

// appendDelta adds streamed text to the response message, creating it on
// the first delta. It reports false once h is no longer active.
func (s *Session) appendDelta(h *streamHandle, text string) bool {
	s.lock()
	defer s.unlock()

	if s.stream != h {
		return false
	}
	if h.assistant < 0 {
		s.emit(s.store.push(llm.Message{Role: llm.RoleAssistant}))
		h.assistant = s.store.len() - 1
	}
	s.emit(s.store.appendText(h.assistant, text))
	s.changedLocked()
	return true
}

// callTool runs a tool requested by the model. The tool writes into the
// conversation through controls bound to h.
func (s *Session) callTool(h *streamHandle, call llm.ToolCall) error {
	s.lock()
	if s.stream != h {
		s.unlock()
		return nil
	}
	s.toolDisplay = s.tools.DisplayName(call.Function.Name)
	s.setStatusLocked(StatusCallingTool)
	tools := s.tools
	s.unlock()

	s.logger.Debug().
		Str("tool", call.Function.Name).
		Str("arguments", string(call.Function.Arguments)).
		Msg("calling tool")

	var err error
	if tools == nil {
		err = errors.New("no tools registered")
	} else {
		err = tools.Invoke(h.ctx, &controls{session: s, stream: h}, call)
	}

	s.lock()
	if s.stream == h {
		s.toolDisplay = ""
		s.setStatusLocked(StatusResponding)
	}
	s.unlock()

	if err != nil && h.ctx.Err() != nil {
		return nil
	}
	return err
}

// finishStream settles h. A cancelled stream ends silently; any other
// error is reported once and suppresses suggestions for the current state.
func (s *Session) finishStream(h *streamHandle, err error) {
	s.lock()
	defer s.unlock()

	if s.stream != h {
		// Superseded or aborted.
		return
	}
	failed := err != nil && !errors.Is(err, context.Canceled) && h.ctx.Err() == nil
	s.stream = nil
	s.toolDisplay = ""
	h.cancel()

	if failed {
		s.reportLocked(err)
		s.suggestedFor = s.store.len()
	}
	s.setStatusLocked(StatusReady)
	s.reactLocked()
}
