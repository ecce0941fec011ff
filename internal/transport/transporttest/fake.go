// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "padron/internal/transport"
)

// Sent is one outbound call recorded by Fake.
type Sent struct {
	Kind    string // "text", "photo", "edit" or "answer"
	ChatID  int64
	Text    string
	Path    string
	Ref     kit.MessageRef
	Options *kit.SendOptions
}

// Fake records every outbound call. FailChat makes sends to that chat fail.
type Fake struct {
	mu     sync.Mutex
	sent   []Sent
	nextID int

	FailChat map[int64]error
	Menu     []kit.BotCommand

	out chan<- kit.Update
}

func New() *Fake { return &Fake{FailChat: map[int64]error{}} }

func (f *Fake) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *Fake) Stop(context.Context) error { return nil }

// Push delivers an update to the channel given to Start.
func (f *Fake) Push(up kit.Update) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out != nil {
		out <- up
	}
}

func (f *Fake) record(s Sent) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailChat[s.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.nextID++
	f.sent = append(f.sent, s)
	return kit.MessageRef{ChatID: s.ChatID, MessageID: f.nextID}, nil
}

func (f *Fake) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return f.record(Sent{Kind: "text", ChatID: to.ChatID, Text: text, Options: opt})
}

func (f *Fake) SendPhoto(_ context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return f.record(Sent{Kind: "photo", ChatID: to.ChatID, Text: caption, Path: path, Options: opt})
}

func (f *Fake) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	_, err := f.record(Sent{Kind: "edit", ChatID: ref.ChatID, Text: text, Ref: ref, Options: opt})
	return err
}

func (f *Fake) AnswerCallback(_ context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Kind: "answer", Text: text, Path: callbackID})
	return nil
}

func (f *Fake) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Menu = append([]kit.BotCommand(nil), cmds...)
	return nil
}

// Sent returns a copy of all recorded calls.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// To returns the texts sent (or edited) to chatID, in order.
func (f *Fake) To(chatID int64) []string {
	var out []string
	for _, s := range f.Sent() {
		if s.ChatID == chatID && (s.Kind == "text" || s.Kind == "edit" || s.Kind == "photo") {
			out = append(out, s.Text)
		}
	}
	return out
}

// Reset drops recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// Message builds a text update.
func Message(chatID int64, from kit.User, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chatID, From: from, Text: text}}
}

// Callback builds a callback update.
func Callback(chatID int64, from kit.User, messageID int, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb-1", ChatID: chatID, From: from, MessageID: messageID, Data: data}}
}
