package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/mkravets/formgate/core/telegram/helpers"
	"github.com/mkravets/formgate/core/telegram/keyboard"
)

// chatPrompter delivers stepper prompts through the chat that drives
// the session. Every inbound update rebinds it to the fresh telebot
// context so replies always target the live chat.
type chatPrompter struct {
	mu sync.Mutex
	c  tele.Context
	// menu is the keyboard restored when a prompt carries no buttons,
	// i.e. on the completion message.
	menu []string
}

func newChatPrompter(c tele.Context, menu []string) *chatPrompter {
	return &chatPrompter{c: c, menu: menu}
}

func (p *chatPrompter) Bind(c tele.Context) {
	p.mu.Lock()
	p.c = c
	p.mu.Unlock()
}

func (p *chatPrompter) current() tele.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c
}

func (p *chatPrompter) Prompt(_ context.Context, text string, buttons []string) error {
	c := p.current()
	if c == nil {
		return fmt.Errorf("prompter has no chat bound")
	}
	labels := buttons
	if len(labels) == 0 {
		labels = p.menu
	}
	return tghelpers.SendMarkup(c, text, keyboard.ReplyButtons(labels...))
}

// Notifier sends moderation notifications outside any inbound update,
// straight through the bot API. The bot is bound after startup, so the
// moderation service can be constructed first.
type Notifier struct {
	bot atomic.Pointer[tele.Bot]
}

// NewNotifier builds an unbound notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SetBot binds the running bot.
func (n *Notifier) SetBot(bot *tele.Bot) {
	n.bot.Store(bot)
}

func (n *Notifier) NotifyUser(_ context.Context, userID int64, text string) error {
	bot := n.bot.Load()
	if bot == nil {
		return fmt.Errorf("notifier: bot not started")
	}
	_, err := bot.Send(&tele.User{ID: userID}, text)
	return err
}

func (n *Notifier) Broadcast(_ context.Context, channelID int64, text string) error {
	bot := n.bot.Load()
	if bot == nil {
		return fmt.Errorf("notifier: bot not started")
	}
	_, err := bot.Send(tele.ChatID(channelID), text)
	return err
}
