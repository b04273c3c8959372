// Package engine runs finite-state conversations over chat events. A
// conversation binds named states to handler rules; entry-point rules
// decide when a new instance starts. At most one conversation is active
// per chat at a time.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// State names a position in a conversation's graph. The empty state is the
// terminal sentinel.
type State string

// End terminates the active conversation.
const End State = ""

// Event is one inbound chat interaction: a command, a free-text message,
// or a button-press callback carrying an action token.
type Event struct {
	ChatID   int64
	UserID   int64
	UserName string
	Text     string
	Command  string
	Args     string
	Callback string
	Time     time.Time
}

func (e Event) IsCommand() bool  { return e.Command != "" }
func (e Event) IsCallback() bool { return e.Callback != "" }
func (e Event) IsText() bool     { return !e.IsCommand() && !e.IsCallback() && e.Text != "" }

// Handler processes one event and returns the next state, or End.
type Handler func(ctx context.Context, ev Event) (State, error)

// Matcher decides whether a rule applies to an event.
type Matcher func(ev Event) bool

// Rule pairs a matcher with its handler.
type Rule struct {
	Match  Matcher
	Handle Handler
}

// AnyText matches free-text messages (not commands, not callbacks).
func AnyText() Matcher {
	return func(ev Event) bool { return ev.IsText() }
}

// CallbackPrefix matches callbacks whose token starts with prefix.
func CallbackPrefix(prefix string) Matcher {
	return func(ev Event) bool {
		return ev.IsCallback() && strings.HasPrefix(ev.Callback, prefix)
	}
}

// CallbackIn matches callbacks whose token equals one of the given values.
func CallbackIn(tokens ...string) Matcher {
	return func(ev Event) bool {
		if !ev.IsCallback() {
			return false
		}
		for _, t := range tokens {
			if ev.Callback == t {
				return true
			}
		}
		return false
	}
}

// Spec is one conversation definition: entry points plus the state graph.
// Cancel runs when the global fallback command interrupts the
// conversation at any state.
type Spec struct {
	Name   string
	Entry  []Rule
	States map[State][]Rule
	Cancel Handler
}

type active struct {
	spec  *Spec
	state State
}

// ErrorHandler is the process-wide boundary: it must clear the chat's
// session and tell the user something went wrong, guaranteeing no
// conversation hangs in a corrupt state.
type ErrorHandler func(ctx context.Context, ev Event, cause any)

// Dispatcher routes events to commands and conversations.
type Dispatcher struct {
	mu        sync.Mutex
	specs     []*Spec
	commands  map[string]Handler
	callbacks []Rule
	onError   ErrorHandler
	conved    map[int64]*active
}

func NewDispatcher(onError ErrorHandler) *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]Handler),
		onError:  onError,
		conved:   make(map[int64]*active),
	}
}

// HandleCommand registers a top-level command handler.
func (d *Dispatcher) HandleCommand(name string, h Handler) {
	d.commands[name] = h
}

// HandleCallback registers a conversation-less callback rule, consulted
// only when no conversation claims the event.
func (d *Dispatcher) HandleCallback(match Matcher, h Handler) {
	d.callbacks = append(d.callbacks, Rule{Match: match, Handle: h})
}

// Register adds a conversation definition.
func (d *Dispatcher) Register(spec *Spec) {
	d.specs = append(d.specs, spec)
}

// ActiveState reports the chat's conversation name and state, for tests
// and diagnostics.
func (d *Dispatcher) ActiveState(chatID int64) (string, State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.conved[chatID]
	if !ok {
		return "", End, false
	}
	return a.spec.Name, a.state, true
}

// Dispatch processes one event for its chat. Events for one chat must be
// fed sequentially; different chats may be dispatched concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("engine: panic in handler for chat %d: %v", ev.ChatID, r)
			d.endConversation(ev.ChatID)
			d.onError(ctx, ev, r)
		}
	}()

	d.mu.Lock()
	a := d.conved[ev.ChatID]
	d.mu.Unlock()

	if ev.Command == "cancel" {
		d.cancel(ctx, ev, a)
		return
	}

	if a != nil {
		if d.dispatchActive(ctx, ev, a) {
			return
		}
		// The current state did not claim the event. A callback may open
		// a nested conversation; a command replaces the conversation.
		if ev.IsCallback() && d.tryEntry(ctx, ev) {
			return
		}
		if ev.IsCommand() {
			d.endConversation(ev.ChatID)
			d.dispatchCommand(ctx, ev)
		}
		return
	}

	if ev.IsCommand() {
		d.dispatchCommand(ctx, ev)
		return
	}
	if ev.IsCallback() {
		if d.tryEntry(ctx, ev) {
			return
		}
		for _, rule := range d.callbacks {
			if rule.Match(ev) {
				d.run(ctx, ev, nil, rule.Handle)
				return
			}
		}
	}
}

func (d *Dispatcher) cancel(ctx context.Context, ev Event, a *active) {
	d.endConversation(ev.ChatID)
	if a != nil && a.spec.Cancel != nil {
		d.run(ctx, ev, nil, a.spec.Cancel)
		return
	}
	if h, ok := d.commands["cancel"]; ok {
		d.run(ctx, ev, nil, h)
	}
}

func (d *Dispatcher) dispatchActive(ctx context.Context, ev Event, a *active) bool {
	rules := a.spec.States[a.state]
	for _, rule := range rules {
		if rule.Match(ev) {
			d.run(ctx, ev, a.spec, rule.Handle)
			return true
		}
	}
	return false
}

func (d *Dispatcher) tryEntry(ctx context.Context, ev Event) bool {
	for _, spec := range d.specs {
		for _, rule := range spec.Entry {
			if rule.Match(ev) {
				d.run(ctx, ev, spec, rule.Handle)
				return true
			}
		}
	}
	return false
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, ev Event) {
	if h, ok := d.commands[ev.Command]; ok {
		d.run(ctx, ev, nil, h)
	}
}

// run executes a handler and records the transition. spec is non-nil when
// the handler belongs to a conversation; a non-terminal returned state
// makes (or keeps) that conversation active.
func (d *Dispatcher) run(ctx context.Context, ev Event, spec *Spec, h Handler) {
	next, err := h(ctx, ev)
	if err != nil {
		logx.Errorf("engine: handler error for chat %d: %v", ev.ChatID, err)
		d.endConversation(ev.ChatID)
		d.onError(ctx, ev, err)
		return
	}
	if spec == nil || next == End {
		d.endConversation(ev.ChatID)
		return
	}
	d.mu.Lock()
	d.conved[ev.ChatID] = &active{spec: spec, state: next}
	d.mu.Unlock()
}

func (d *Dispatcher) endConversation(chatID int64) {
	d.mu.Lock()
	delete(d.conved, chatID)
	d.mu.Unlock()
}
