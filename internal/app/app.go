// Package app wires the form engine, the moderation lifecycle, and the
// settings store into a Telegram bot: menus, commands, callbacks, and
// the per-user session routing.
package app

import (
	"context"
	"errors"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/mkravets/formgate/core/config"
	"github.com/mkravets/formgate/core/logger"
	tghelpers "github.com/mkravets/formgate/core/telegram/helpers"
	"github.com/mkravets/formgate/internal/form"
	"github.com/mkravets/formgate/internal/moderation"
	"github.com/mkravets/formgate/internal/session"
	"github.com/mkravets/formgate/internal/settings"
	"log/slog"
)

type runKind int

const (
	runForm runKind = iota
	runAddAdmin
	runRemoveAdmin
	runAddModerator
	runRemoveModerator
	runSetChannel
	runSetQuorum
)

// run tracks one in-progress fill. Runs are keyed by user id; a user
// has at most one at a time. Dropping the run from the table is what
// garbage-collects the session's routing after completion or cancel;
// the drop also cancels the run's context so the result consumer never
// outlives a fill that will not publish.
type run struct {
	kind     runKind
	stepper  *form.Stepper
	template *form.Template
	prompter *chatPrompter
	user     *tele.User

	ctx    context.Context
	cancel context.CancelFunc
}

// App owns the bot-facing application state.
type App struct {
	cfg      *config.Config
	catalog  *form.Catalog
	sessions session.Store
	settings *settings.Settings
	posts    *moderation.Service

	bot      *tele.Bot
	notifier *Notifier

	mu   sync.Mutex
	runs map[int64]*run
}

// Options carry the constructed services into the app.
type Options struct {
	Config   *config.Config
	Catalog  *form.Catalog
	Sessions session.Store
	Settings *settings.Settings
	Posts    *moderation.Service
	Notifier *Notifier
}

// New builds the app and applies the persisted template activation
// partition to the catalog.
func New(opts Options) *App {
	a := &App{
		cfg:      opts.Config,
		catalog:  opts.Catalog,
		sessions: opts.Sessions,
		settings: opts.Settings,
		posts:    opts.Posts,
		notifier: opts.Notifier,
		runs:     make(map[int64]*run),
	}
	if a.notifier == nil {
		a.notifier = NewNotifier()
	}
	for _, tpl := range a.catalog.All() {
		active, ok := a.settings.TemplateOverride(tpl.Idx())
		if !ok {
			continue
		}
		if active {
			tpl.Activate()
		} else {
			tpl.Deactivate()
		}
	}
	return a
}

// BindBot attaches the running bot, completing the notifier wiring.
func (a *App) BindBot(bot *tele.Bot) {
	a.bot = bot
	a.notifier.SetBot(bot)
}

// InProgress reports whether the user has an active fill. Part of the
// router's FSM contract: active sessions swallow all text input.
func (a *App) InProgress(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.runs[userID]
	return ok
}

// Continue feeds one inbound update into the user's active fill.
func (a *App) Continue(c tele.Context) error {
	userID := c.Sender().ID
	a.mu.Lock()
	r, ok := a.runs[userID]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	r.prompter.Bind(c)
	ctx := tghelpers.BuildContext(c)
	input := extractInput(c)

	if input == btnCancel {
		a.dropRun(userID)
		if err := r.stepper.Cancel(ctx); err != nil {
			return err
		}
		return a.sendMainMenu(c, textCancelled)
	}

	ok, err := r.stepper.Validate(ctx, input)
	if errors.Is(err, form.ErrSessionGone) {
		// cleared behind our back, e.g. session TTL expiry
		a.dropRun(userID)
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := r.stepper.Update(ctx, input); err != nil {
		if errors.Is(err, form.ErrSessionGone) {
			a.dropRun(userID)
			return nil
		}
		return err
	}

	if r.stepper.Ended() {
		// Close publishes before the run is dropped, otherwise the
		// drop's cancellation could beat the publication to the
		// result consumer.
		err := r.stepper.Close(ctx)
		a.dropRun(userID)
		return err
	}
	return r.stepper.Forward(ctx)
}

// startRun begins a fill for the sender. One run per user: the busy
// check and the table insert share one critical section, so two
// concurrent taps cannot both reserve the slot.
func (a *App) startRun(c tele.Context, kind runKind, opts form.StepperOptions, tpl *form.Template) error {
	userID := c.Sender().ID

	opts.Template = tpl
	opts.CancelLabel = btnCancel
	prompter := newChatPrompter(c, a.menuLabels(userID))
	stepper, err := form.NewStepper("", a.sessions, prompter, opts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(logger.Background())
	r := &run{
		kind:     kind,
		stepper:  stepper,
		template: tpl,
		prompter: prompter,
		user:     c.Sender(),
		ctx:      runCtx,
		cancel:   cancel,
	}

	a.mu.Lock()
	if _, busy := a.runs[userID]; busy {
		a.mu.Unlock()
		cancel()
		return tghelpers.SendText(c, textBusy)
	}
	a.runs[userID] = r
	a.mu.Unlock()

	go a.consumeResults(r)

	ctx := tghelpers.BuildContext(c)
	if err := stepper.Start(ctx); err != nil {
		a.dropRun(userID)
		return err
	}
	return nil
}

func (a *App) dropRun(userID int64) {
	a.mu.Lock()
	r, ok := a.runs[userID]
	delete(a.runs, userID)
	a.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// consumeResults waits for the stepper to publish and applies the
// outcome. A cancelled run publishes nil and is ignored; a dropped run
// cancels the wait itself. The outcome is applied under a fresh
// context because the run's own one dies with the drop.
func (a *App) consumeResults(r *run) {
	results, err := r.stepper.Results(r.ctx)
	if err != nil || results == nil {
		return
	}
	ctx := logger.Background()

	switch r.kind {
	case runForm:
		a.finishFormRun(ctx, r, results)
	case runAddAdmin:
		if id, ok := resultInt64(results, entryAdminID); ok {
			a.settings.AddAdmin(ctx, id)
			a.notifyActor(ctx, r, "Admin added.")
		}
	case runRemoveAdmin:
		if id, ok := resultInt64(results, entryAdminID); ok {
			a.settings.RemoveAdmin(ctx, id)
			a.notifyActor(ctx, r, "Admin removed.")
		}
	case runAddModerator:
		if id, ok := resultInt64(results, entryModeratorID); ok {
			a.settings.AddModerator(ctx, id)
			a.notifyActor(ctx, r, "Moderator added.")
		}
	case runRemoveModerator:
		if id, ok := resultInt64(results, entryModeratorID); ok {
			a.settings.RemoveModerator(ctx, id)
			a.notifyActor(ctx, r, "Moderator removed.")
		}
	case runSetChannel:
		if id, ok := resultInt64(results, entryChannelID); ok {
			a.settings.SetChannel(ctx, id)
			a.notifyActor(ctx, r, "Broadcast channel connected.")
		}
	case runSetQuorum:
		approvals, okA := resultInt(results, entryMinApprovals)
		rejections, okR := resultInt(results, entryMinRejections)
		if okA && okR {
			a.settings.SetQuorum(ctx, approvals, rejections)
			a.notifyActor(ctx, r, "Quorum updated.")
		}
	}
}

// finishFormRun turns the collected answers into a pending submission
// and pings every admin about it.
func (a *App) finishFormRun(ctx context.Context, r *run, results map[string]string) {
	post := moderation.NewPost(
		r.template.Title,
		moderation.ResultsToData(results),
		r.user.ID,
		r.user.Username,
		userFullName(r.user),
	)
	if err := a.posts.Submit(ctx, post); err != nil {
		logger.Error(ctx, "app", "post.submit.fail",
			slog.String("template", r.template.Title),
			slog.String("err", err.Error()),
		)
		return
	}
	a.announceSubmission(ctx, post)
}

// announceSubmission sends the compiled post with vote buttons to every
// reviewer, admins and moderators alike. Delivery failures are logged
// per recipient and skipped.
func (a *App) announceSubmission(ctx context.Context, post *moderation.Post) {
	if a.bot == nil {
		return
	}
	markup := voteMarkup(post.ID)
	text := textNewSubmission + "\n\n" + post.Message()
	for _, reviewerID := range a.settings.Reviewers() {
		if _, err := a.bot.Send(&tele.User{ID: reviewerID}, text, markup); err != nil {
			logger.Warn(ctx, "app", "post.announce.fail",
				slog.String("post_id", post.ID),
				slog.Int64("admin_id", reviewerID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (a *App) notifyActor(ctx context.Context, r *run, text string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.NotifyUser(ctx, r.user.ID, text); err != nil {
		logger.Warn(ctx, "app", "notify.fail",
			slog.Int64("user_id", r.user.ID),
			slog.String("err", err.Error()),
		)
	}
}

// menuLabels composes the main reply keyboard for a user.
func (a *App) menuLabels(userID int64) []string {
	labels := []string{btnForms}
	if a.settings.IsAdmin(userID) {
		labels = append(labels, btnSettings)
	}
	return labels
}

// extractInput pulls the answer out of an update: message text, or the
// attachment file id for file entries.
func extractInput(c tele.Context) string {
	msg := c.Message()
	if msg != nil {
		if msg.Document != nil {
			return msg.Document.FileID
		}
		if msg.Photo != nil {
			return msg.Photo.FileID
		}
	}
	return c.Text()
}

func userFullName(u *tele.User) string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func resultInt64(results map[string]string, key string) (int64, bool) {
	raw, ok := results[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func resultInt(results map[string]string, key string) (int, bool) {
	n, ok := resultInt64(results, key)
	return int(n), ok
}
