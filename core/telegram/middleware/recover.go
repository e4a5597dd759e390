package middleware

import (
	"runtime/debug"

	"github.com/mkravets/formgate/core/logger"
	tghelpers "github.com/mkravets/formgate/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error log so one bad
// update cannot take the whole bot down.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				ctx, ok := tghelpers.ContextFrom(c)
				if !ok {
					ctx = logger.Background()
				}
				attrs := []slog.Attr{
					slog.String("status", "panic"),
					slog.Any("err", r),
					slog.Int("update_id", c.Update().ID),
				}
				if u := c.Sender(); u != nil {
					attrs = append(attrs, slog.Int64("user_id", u.ID))
				}
				attrs = append(attrs, slog.String("stack", logger.SanitizeLimit(string(debug.Stack()), 4096)))
				logger.Error(ctx, "tg", "handler.panic", attrs...)
			}
		}()
		return next(c)
	}
}
