package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkravets/formgate/core/logger"
	"log/slog"
)

// Outcome describes what a vote call did.
type Outcome int

const (
	// OutcomePending means the vote was recorded (or was a duplicate)
	// and the submission is still open.
	OutcomePending Outcome = iota
	// OutcomeApproved means this vote crossed the approval quorum.
	OutcomeApproved
	// OutcomeRejected means this vote crossed the rejection quorum.
	OutcomeRejected
	// OutcomeAlreadyResolved means the submission was gone before the
	// vote could apply; a concurrent vote resolved it first.
	OutcomeAlreadyResolved
)

// Notifier delivers moderation messages. Delivery failures are logged
// by the service and never roll a vote back.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
	Broadcast(ctx context.Context, channelID int64, text string) error
}

// Quorum supplies the thresholds and broadcast channel consulted on
// every vote, so runtime settings changes apply to open submissions.
type Quorum interface {
	MinApproval() int
	MinRejection() int
	Channel() int64
}

const (
	approvedText = "Your post has been approved."
	rejectedText = "Your post has been rejected."
)

// Service owns the vote sequence. The mutex serializes the
// check-insert-quorum-remove critical section so two concurrent votes
// can never both believe they were the quorum-crossing one.
type Service struct {
	store    Store
	notifier Notifier
	quorum   Quorum

	mu chan struct{}
}

// NewService builds the moderation service.
func NewService(store Store, notifier Notifier, quorum Quorum) *Service {
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &Service{
		store:    store,
		notifier: notifier,
		quorum:   quorum,
		mu:       mu,
	}
}

// Submit stores a fresh submission.
func (s *Service) Submit(ctx context.Context, post *Post) error {
	if err := s.store.Add(ctx, post); err != nil {
		return fmt.Errorf("submit post: %w", err)
	}
	logger.Info(ctx, "moderation", "post.submit",
		slog.String("post_id", post.ID),
		slog.String("template", post.Title),
		slog.Int64("user_id", post.UserID),
	)
	return nil
}

// Pending lists open submissions.
func (s *Service) Pending(ctx context.Context) ([]*Post, error) {
	return s.store.List(ctx)
}

// Approve records an approval vote. Re-approving is a no-op; an admin
// switching sides is moved out of the rejection set. Crossing the
// approval quorum notifies the submitter, forwards the compiled text
// to the broadcast channel when one is set, and removes the submission.
func (s *Service) Approve(ctx context.Context, postID string, adminID int64) (Outcome, error) {
	if err := s.lock(ctx); err != nil {
		return OutcomePending, err
	}
	defer s.unlock()

	post, err := s.store.Get(ctx, postID)
	if errors.Is(err, ErrPostNotFound) {
		return OutcomeAlreadyResolved, nil
	}
	if err != nil {
		return OutcomePending, err
	}
	if post.HasApproval(adminID) {
		return OutcomePending, nil
	}

	post.RejectedBy = removeID(post.RejectedBy, adminID)
	post.ApprovedBy = append(post.ApprovedBy, adminID)
	if err := s.store.Update(ctx, post); err != nil {
		return OutcomePending, err
	}
	logger.Info(ctx, "moderation", "post.approve",
		slog.String("post_id", post.ID),
		slog.Int64("admin_id", adminID),
		slog.Int("count", len(post.ApprovedBy)),
	)

	if len(post.ApprovedBy) < s.quorum.MinApproval() {
		return OutcomePending, nil
	}
	s.resolve(ctx, post, true)
	return OutcomeApproved, nil
}

// Reject records a rejection vote, symmetric to Approve but without
// the channel broadcast.
func (s *Service) Reject(ctx context.Context, postID string, adminID int64) (Outcome, error) {
	if err := s.lock(ctx); err != nil {
		return OutcomePending, err
	}
	defer s.unlock()

	post, err := s.store.Get(ctx, postID)
	if errors.Is(err, ErrPostNotFound) {
		return OutcomeAlreadyResolved, nil
	}
	if err != nil {
		return OutcomePending, err
	}
	if post.HasRejection(adminID) {
		return OutcomePending, nil
	}

	post.ApprovedBy = removeID(post.ApprovedBy, adminID)
	post.RejectedBy = append(post.RejectedBy, adminID)
	if err := s.store.Update(ctx, post); err != nil {
		return OutcomePending, err
	}
	logger.Info(ctx, "moderation", "post.reject",
		slog.String("post_id", post.ID),
		slog.Int64("admin_id", adminID),
		slog.Int("count", len(post.RejectedBy)),
	)

	if len(post.RejectedBy) < s.quorum.MinRejection() {
		return OutcomePending, nil
	}
	s.resolve(ctx, post, false)
	return OutcomeRejected, nil
}

// resolve runs the terminal transition: notify, broadcast on approval,
// remove. Delivery failures are logged; the removal still happens so
// the submission reaches exactly one terminal outcome.
func (s *Service) resolve(ctx context.Context, post *Post, approved bool) {
	text, status := rejectedText, "rejected"
	if approved {
		text, status = approvedText, "approved"
	}
	if err := s.notifier.NotifyUser(ctx, post.UserID, text); err != nil {
		logger.Warn(ctx, "moderation", "post.notify.fail",
			slog.String("post_id", post.ID),
			slog.Int64("user_id", post.UserID),
			slog.String("err", err.Error()),
		)
	}
	if approved {
		if channel := s.quorum.Channel(); channel != 0 {
			if err := s.notifier.Broadcast(ctx, channel, post.Message()); err != nil {
				logger.Warn(ctx, "moderation", "post.broadcast.fail",
					slog.String("post_id", post.ID),
					slog.Int64("channel_id", channel),
					slog.String("err", err.Error()),
				)
			}
		} else {
			logger.Warn(ctx, "moderation", "post.broadcast.skip",
				slog.String("post_id", post.ID),
				slog.String("cause", "no_channel"),
			)
		}
	}
	if err := s.store.Remove(ctx, post.ID); err != nil && !errors.Is(err, ErrPostNotFound) {
		logger.Error(ctx, "moderation", "post.remove.fail",
			slog.String("post_id", post.ID),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, "moderation", "post.resolve",
		slog.String("post_id", post.ID),
		slog.String("status", status),
	)
}

func (s *Service) lock(ctx context.Context) error {
	select {
	case <-s.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) unlock() {
	s.mu <- struct{}{}
}
