package commands

import tele "gopkg.in/telebot.v4"

// Command pairs a slash command handler with the metadata the registry
// needs: menu description, visibility, and alternate spellings.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
