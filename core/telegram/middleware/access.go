package middleware

import tele "gopkg.in/telebot.v4"

// AdminChecker reports whether a user id belongs to the admin roster.
// The settings store implements it.
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	Admins   AdminChecker
	OnReject tele.HandlerFunc
}

// AdminOnly wraps a handler enforcing admin-only execution.
func AdminOnly(opts AdminOptions, handler tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if opts.Admins == nil || !opts.Admins.IsAdmin(c.Sender().ID) {
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
		return handler(c)
	}
}

// AdminOnlyMiddleware ensures that only admin users can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return AdminOnly(opts, next)
	}
}
