package app

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/mkravets/formgate/core/telegram"
	"github.com/mkravets/formgate/core/telegram/callbacks"
	"github.com/mkravets/formgate/core/telegram/commands"
	tghelpers "github.com/mkravets/formgate/core/telegram/helpers"
	"github.com/mkravets/formgate/core/telegram/keyboard"
	"github.com/mkravets/formgate/core/telegram/middleware"
	"github.com/mkravets/formgate/core/telegram/router"
	"github.com/mkravets/formgate/internal/form"
	"github.com/mkravets/formgate/internal/moderation"
	"github.com/mkravets/formgate/internal/settings"
)

// Mini-form entry titles, shared by the run consumers.
const (
	entryAdminID       = "Admin ID"
	entryModeratorID   = "Moderator ID"
	entryChannelID     = "Channel ID"
	entryMinApprovals  = "Minimum approvals"
	entryMinRejections = "Minimum rejections"
)

// reviewerGate widens the admin check to the moderator roster for the
// review surface: the pending list and the vote buttons.
type reviewerGate struct {
	s *settings.Settings
}

func (g reviewerGate) IsAdmin(userID int64) bool {
	return g.s.IsReviewer(userID)
}

// Register fills the registry with commands and callbacks and returns
// the routes to mount on the bot.
func (a *App) Register(reg *tg.Registry) []tg.Route {
	adminOpts := middleware.AdminOptions{
		Admins: a.settings,
		OnReject: func(c tele.Context) error {
			return tghelpers.SendText(c, textNotAllowed)
		},
	}
	admin := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.AdminOnly(adminOpts, h)
	}

	reviewOpts := middleware.AdminOptions{
		Admins: reviewerGate{s: a.settings},
		OnReject: func(c tele.Context) error {
			return tghelpers.SendText(c, textReviewersOnly)
		},
	}
	review := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.AdminOnly(reviewOpts, h)
	}

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Open the main menu",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler: func(c tele.Context) error {
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, cmd := range reg.ListCommands(true) {
				b.WriteString(cmd.Text + " - " + cmd.Description + "\n")
			}
			return tghelpers.SendText(c, b.String())
		},
		Description: "Show this help",
	})
	reg.RegisterCommand("/forms", commands.Command{
		Handler:     a.handleForms,
		Description: "List available forms",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancelCommand,
		Description: "Cancel the current form",
	})
	reg.RegisterCommand("/pending", commands.Command{
		Handler:     review(a.handlePending),
		Description: "Posts waiting for review",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/settings", commands.Command{
		Handler:     admin(a.handleSettingsMenu),
		Description: "Bot settings",
		AdminOnly:   true,
	})

	reg.RegisterCallback(cbFormStart, a.handleFormStart)
	reg.RegisterCallback(cbPostApprove, review(a.voteHandler(true)))
	reg.RegisterCallback(cbPostReject, review(a.voteHandler(false)))
	reg.RegisterCallback(cbTplToggle, admin(a.handleTemplateToggle))
	reg.RegisterCallback(cbAddAdmin, admin(a.handleAddAdmin))
	reg.RegisterCallback(cbRemoveAdmin, admin(a.handleRemoveAdmin))
	reg.RegisterCallback(cbAddMod, admin(a.handleAddModerator))
	reg.RegisterCallback(cbRemoveMod, admin(a.handleRemoveModerator))
	reg.RegisterCallback(cbSetChannel, admin(a.handleSetChannel))
	reg.RegisterCallback(cbSetQuorum, admin(a.handleSetQuorum))
	reg.RegisterCallback(cbPending, review(a.handlePending))

	reg.SetTextFallback(a.handleMenuText)
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return tghelpers.SendText(c, textFallbackErr)
	})

	routes := router.TextRoutes(a, reg, router.TextOptions{
		UnknownText: func(c tele.Context) error {
			return a.sendMainMenu(c, textUnknown)
		},
		UnknownDocument: func(c tele.Context) error {
			return a.sendMainMenu(c, textUnknown)
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	return routes
}

// handleMenuText routes reply-keyboard presses, which arrive as plain
// text rather than commands.
func (a *App) handleMenuText(c tele.Context) error {
	switch strings.TrimSpace(c.Text()) {
	case btnMainMenu:
		return a.handleStart(c)
	case btnForms:
		return a.handleForms(c)
	case btnSettings:
		if !a.settings.IsAdmin(c.Sender().ID) {
			return tghelpers.SendText(c, textNotAllowed)
		}
		return a.handleSettingsMenu(c)
	default:
		return a.sendMainMenu(c, textUnknown)
	}
}

func (a *App) handleStart(c tele.Context) error {
	text := a.catalog.Welcome
	if text == "" {
		text = textMainMenu
	}
	return a.sendMainMenu(c, text)
}

func (a *App) sendMainMenu(c tele.Context, text string) error {
	return tghelpers.SendMarkup(c, text, keyboard.ReplyButtons(a.menuLabels(c.Sender().ID)...))
}

// handleForms offers the active templates as inline buttons keyed by
// the template's stable index.
func (a *App) handleForms(c tele.Context) error {
	active := a.catalog.Active()
	if len(active) == 0 {
		return tghelpers.SendText(c, textNoForms)
	}
	buttons := make([]keyboard.InlineBtn, 0, len(active))
	for _, tpl := range active {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   tpl.Title,
			Unique: cbFormStart,
			Data:   strconv.Itoa(tpl.Idx()),
		})
	}
	return tghelpers.SendMarkup(c, textForms, keyboard.InlineButtons(buttons))
}

// handleFormStart launches a fill for the template in the payload.
func (a *App) handleFormStart(c tele.Context) error {
	idx, err := callbacks.PayloadInt(c)
	if err != nil {
		return tghelpers.SendText(c, textFallbackErr)
	}
	tpl, err := a.catalog.Get(idx)
	if err != nil || !tpl.Active() {
		return tghelpers.SendText(c, textNoForms)
	}
	return a.startRun(c, runForm, form.StepperOptions{}, tpl)
}

func (a *App) handleCancelCommand(c tele.Context) error {
	userID := c.Sender().ID
	a.mu.Lock()
	r, ok := a.runs[userID]
	a.mu.Unlock()
	if !ok {
		return a.sendMainMenu(c, textMainMenu)
	}
	a.dropRun(userID)
	if err := r.stepper.Cancel(tghelpers.BuildContext(c)); err != nil {
		return err
	}
	return a.sendMainMenu(c, textCancelled)
}

// handleSettingsMenu shows the admin control panel.
func (a *App) handleSettingsMenu(c tele.Context) error {
	rows := [][]keyboard.InlineBtn{
		{{Text: "➕ Add admin", Unique: cbAddAdmin}, {Text: "➖ Remove admin", Unique: cbRemoveAdmin}},
		{{Text: "➕ Add moderator", Unique: cbAddMod}, {Text: "➖ Remove moderator", Unique: cbRemoveMod}},
		{{Text: "📡 Connect channel", Unique: cbSetChannel}, {Text: "🗳 Set quorum", Unique: cbSetQuorum}},
		{{Text: "🗂 Pending posts", Unique: cbPending}},
	}
	tplRow := make([]keyboard.InlineBtn, 0, len(a.catalog.All()))
	for _, tpl := range a.catalog.All() {
		label := "🔴 " + tpl.Title
		if tpl.Active() {
			label = "🟢 " + tpl.Title
		}
		tplRow = append(tplRow, keyboard.InlineBtn{
			Text:   label,
			Unique: cbTplToggle,
			Data:   strconv.Itoa(tpl.Idx()),
		})
	}
	if len(tplRow) > 0 {
		rows = append(rows, tplRow)
	}
	return tghelpers.SendMarkup(c, textSettingsMenu, keyboard.InlineButtonsRows(rows...))
}

// handleTemplateToggle flips one template's activation, persisting the
// partition in settings.
func (a *App) handleTemplateToggle(c tele.Context) error {
	idx, err := callbacks.PayloadInt(c)
	if err != nil {
		return tghelpers.SendText(c, textFallbackErr)
	}
	tpl, err := a.catalog.Get(idx)
	if err != nil {
		return tghelpers.SendText(c, textFallbackErr)
	}
	ctx := tghelpers.BuildContext(c)
	if tpl.Active() {
		tpl.Deactivate()
		a.settings.SetTemplateActive(ctx, idx, false)
	} else {
		tpl.Activate()
		a.settings.SetTemplateActive(ctx, idx, true)
	}
	return a.handleSettingsMenu(c)
}

// handleAddAdmin and friends run single-entry mini-forms through the
// same stepper engine the user forms use.
func (a *App) handleAddAdmin(c tele.Context) error {
	return a.startRun(c, runAddAdmin, form.StepperOptions{
		Entries: []*form.Entry{
			form.NewEntry(form.KindNumber, entryAdminID, "Send the numeric Telegram id of the new admin.", "That is not a numeric id.", nil, false),
		},
		Complete: "Processing…",
	}, nil)
}

func (a *App) handleRemoveAdmin(c tele.Context) error {
	return a.startRun(c, runRemoveAdmin, form.StepperOptions{
		Entries: []*form.Entry{
			form.NewEntry(form.KindNumber, entryAdminID, "Send the numeric Telegram id of the admin to remove.", "That is not a numeric id.", nil, false),
		},
		Complete: "Processing…",
	}, nil)
}

// Moderators may review submissions but not touch settings; only
// admins edit the roster.
func (a *App) handleAddModerator(c tele.Context) error {
	return a.startRun(c, runAddModerator, form.StepperOptions{
		Entries: []*form.Entry{
			form.NewEntry(form.KindNumber, entryModeratorID, "Send the numeric Telegram id of the new moderator.", "That is not a numeric id.", nil, false),
		},
		Complete: "Processing…",
	}, nil)
}

func (a *App) handleRemoveModerator(c tele.Context) error {
	return a.startRun(c, runRemoveModerator, form.StepperOptions{
		Entries: []*form.Entry{
			form.NewEntry(form.KindNumber, entryModeratorID, "Send the numeric Telegram id of the moderator to remove.", "That is not a numeric id.", nil, false),
		},
		Complete: "Processing…",
	}, nil)
}

// handleSetChannel asks for the broadcast channel id and probes it
// through the bot API before accepting.
func (a *App) handleSetChannel(c tele.Context) error {
	entry := form.NewEntry(form.KindText, entryChannelID, "Send the id of the channel the bot should publish to. The bot must be a member.", "Cannot reach that channel. Check the id and the bot's membership.", nil, false)
	entry.SetValidator(a.channelReachable)
	return a.startRun(c, runSetChannel, form.StepperOptions{
		Entries:  []*form.Entry{entry},
		Complete: "Processing…",
	}, nil)
}

// channelReachable accepts a channel id only if the bot can see the chat.
func (a *App) channelReachable(_ context.Context, raw string) bool {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}
	if a.bot == nil {
		return false
	}
	_, err = a.bot.ChatByID(id)
	return err == nil
}

func (a *App) handleSetQuorum(c tele.Context) error {
	return a.startRun(c, runSetQuorum, form.StepperOptions{
		Entries: []*form.Entry{
			form.NewEntry(form.KindNumber, entryMinApprovals, "How many approvals resolve a post?", "Numbers only.", nil, false),
			form.NewEntry(form.KindNumber, entryMinRejections, "How many rejections resolve a post?", "Numbers only.", nil, false),
		},
		Complete: "Processing…",
	}, nil)
}

// handlePending sends each open submission with its vote buttons.
func (a *App) handlePending(c tele.Context) error {
	pending, err := a.posts.Pending(tghelpers.BuildContext(c))
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return tghelpers.SendText(c, textNoPending)
	}
	for _, post := range pending {
		if err := tghelpers.SendMarkup(c, post.Message(), voteMarkup(post.ID)); err != nil {
			return err
		}
	}
	return nil
}

// voteHandler builds the approve or reject callback handler. Every
// outcome produces a visible reply, including the already-resolved
// race, which is informational rather than an error.
func (a *App) voteHandler(approve bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		postID := strings.TrimSpace(callbacks.CallbackPayload(c))
		if postID == "" {
			return tghelpers.SendText(c, textFallbackErr)
		}
		ctx := tghelpers.BuildContext(c)

		var outcome moderation.Outcome
		var err error
		if approve {
			outcome, err = a.posts.Approve(ctx, postID, c.Sender().ID)
		} else {
			outcome, err = a.posts.Reject(ctx, postID, c.Sender().ID)
		}
		if err != nil {
			return err
		}

		switch outcome {
		case moderation.OutcomeApproved:
			return tghelpers.SendText(c, textPostApproved)
		case moderation.OutcomeRejected:
			return tghelpers.SendText(c, textPostRejected)
		case moderation.OutcomeAlreadyResolved:
			return tghelpers.SendText(c, textAlreadyResolved)
		default:
			return tghelpers.SendText(c, textVoteRecorded)
		}
	}
}

func voteMarkup(postID string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: cbPostApprove, Data: postID},
		{Text: "❌ Reject", Unique: cbPostReject, Data: postID},
	})
}
