// Package settings holds the process-wide moderation configuration:
// admin and moderator rosters, the broadcast channel, quorum counts,
// and the template activation partition. Every mutation is written
// through to the backing store before the call returns.
package settings

import (
	"context"
	"sort"
	"sync"

	"github.com/mkravets/formgate/core/logger"
	"log/slog"
)

// Snapshot is the serialized form of the settings state. Template
// activation is stored as explicit per-index overrides, split into the
// two lists; an index in neither list keeps its catalog default.
type Snapshot struct {
	Admins            []int64 `json:"admins"`
	Moderators        []int64 `json:"moderators"`
	Channel           int64   `json:"channel,omitempty"`
	MinApproval       int     `json:"min_approval"`
	MinRejection      int     `json:"min_rejection"`
	ActiveTemplates   []int   `json:"active_templates"`
	InactiveTemplates []int   `json:"inactive_templates"`
}

// Store persists settings snapshots. Load reports found=false when no
// prior state exists.
type Store interface {
	Load(ctx context.Context) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Defaults seed the settings on first start, before any stored state.
type Defaults struct {
	Admins       []int64
	MinApproval  int
	MinRejection int
}

// Settings is the canonical in-memory copy. All methods are safe for
// concurrent use.
type Settings struct {
	store Store

	mu           sync.Mutex
	admins       []int64
	moderators   []int64
	channel      int64
	minApproval  int
	minRejection int
	// tplOverride records admin toggles by template index. Absent
	// means the catalog default stands.
	tplOverride map[int]bool
}

// New loads prior state from the store, falling back to the defaults
// when nothing is stored or the stored state cannot be read. Load
// failures are logged and swallowed so startup never dies on a
// corrupted file.
func New(ctx context.Context, store Store, defaults Defaults) *Settings {
	s := &Settings{
		store:        store,
		admins:       append([]int64(nil), defaults.Admins...),
		minApproval:  clampQuorum(defaults.MinApproval),
		minRejection: clampQuorum(defaults.MinRejection),
		tplOverride:  make(map[int]bool),
	}

	snap, found, err := store.Load(ctx)
	if err != nil {
		logger.Warn(ctx, "settings", "settings.load.fail",
			slog.String("err", err.Error()),
		)
		return s
	}
	if !found {
		logger.Info(ctx, "settings", "settings.load.empty",
			slog.Int("count", len(s.admins)),
		)
		return s
	}
	s.apply(snap)
	logger.Info(ctx, "settings", "settings.load",
		slog.Int("count", len(s.admins)),
	)
	return s
}

// apply replaces the in-memory state with a stored snapshot. The
// snapshot wins over the bootstrap defaults even when a list is empty:
// an admin who emptied the roster meant it.
func (s *Settings) apply(snap Snapshot) {
	s.admins = append([]int64(nil), snap.Admins...)
	s.moderators = append([]int64(nil), snap.Moderators...)
	s.channel = snap.Channel
	if snap.MinApproval > 0 {
		s.minApproval = clampQuorum(snap.MinApproval)
	}
	if snap.MinRejection > 0 {
		s.minRejection = clampQuorum(snap.MinRejection)
	}
	s.tplOverride = make(map[int]bool, len(snap.ActiveTemplates)+len(snap.InactiveTemplates))
	for _, idx := range snap.InactiveTemplates {
		s.tplOverride[idx] = false
	}
	for _, idx := range snap.ActiveTemplates {
		s.tplOverride[idx] = true
	}
}

// Snapshot returns a copy of the current state.
func (s *Settings) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Settings) snapshotLocked() Snapshot {
	active := make([]int, 0, len(s.tplOverride))
	inactive := make([]int, 0, len(s.tplOverride))
	for idx, on := range s.tplOverride {
		if on {
			active = append(active, idx)
		} else {
			inactive = append(inactive, idx)
		}
	}
	sort.Ints(active)
	sort.Ints(inactive)
	return Snapshot{
		Admins:            append([]int64(nil), s.admins...),
		Moderators:        append([]int64(nil), s.moderators...),
		Channel:           s.channel,
		MinApproval:       s.minApproval,
		MinRejection:      s.minRejection,
		ActiveTemplates:   active,
		InactiveTemplates: inactive,
	}
}

// persistLocked writes the current state through to the store. Mutation
// happens first, persistence second, so a crash can only lose the very
// last write, never record a state that was not reached.
func (s *Settings) persistLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		logger.Error(ctx, "settings", "settings.save.fail",
			slog.String("err", err.Error()),
		)
	}
}

// Admins returns a copy of the admin roster.
func (s *Settings) Admins() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.admins...)
}

// IsAdmin reports roster membership.
func (s *Settings) IsAdmin(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsID(s.admins, userID)
}

// AddAdmin adds the user to the roster. Idempotent.
func (s *Settings) AddAdmin(ctx context.Context, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if containsID(s.admins, userID) {
		return
	}
	s.admins = append(s.admins, userID)
	s.persistLocked(ctx)
	logger.Info(ctx, "settings", "admin.add",
		slog.Int64("admin_id", userID),
		slog.Int("count", len(s.admins)),
	)
}

// RemoveAdmin drops the user from the roster. A roster smaller than a
// quorum threshold makes submissions unresolvable in that direction;
// this is warned about but not prevented.
func (s *Settings) RemoveAdmin(ctx context.Context, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.admins[:0]
	for _, id := range s.admins {
		if id != userID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(s.admins) {
		return
	}
	s.admins = kept
	s.persistLocked(ctx)
	logger.Info(ctx, "settings", "admin.remove",
		slog.Int64("admin_id", userID),
		slog.Int("count", len(s.admins)),
	)
	if len(s.admins) < s.minApproval || len(s.admins) < s.minRejection {
		logger.Warn(ctx, "settings", "quorum.unreachable",
			slog.Int("count", len(s.admins)),
		)
	}
}

// IsModerator reports moderator membership.
func (s *Settings) IsModerator(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsID(s.moderators, userID)
}

// IsReviewer reports whether the user may judge submissions: admins
// and moderators both vote, only admins manage settings.
func (s *Settings) IsReviewer(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsID(s.admins, userID) || containsID(s.moderators, userID)
}

// Reviewers returns the merged admin and moderator rosters, without
// duplicates. Submission announcements go to everyone listed.
func (s *Settings) Reviewers() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]int64(nil), s.admins...)
	for _, id := range s.moderators {
		if !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// AddModerator adds the user to the moderator list. Idempotent.
func (s *Settings) AddModerator(ctx context.Context, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if containsID(s.moderators, userID) {
		return
	}
	s.moderators = append(s.moderators, userID)
	s.persistLocked(ctx)
}

// RemoveModerator drops the user from the moderator list. Idempotent.
func (s *Settings) RemoveModerator(ctx context.Context, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.moderators[:0]
	for _, id := range s.moderators {
		if id != userID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(s.moderators) {
		return
	}
	s.moderators = kept
	s.persistLocked(ctx)
}

// Channel returns the broadcast channel id, 0 when unset.
func (s *Settings) Channel() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// SetChannel stores the broadcast channel id.
func (s *Settings) SetChannel(ctx context.Context, channelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channelID
	s.persistLocked(ctx)
	logger.Info(ctx, "settings", "channel.set",
		slog.Int64("channel_id", channelID),
	)
}

// MinApproval returns the approval quorum.
func (s *Settings) MinApproval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minApproval
}

// MinRejection returns the rejection quorum.
func (s *Settings) MinRejection() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minRejection
}

// SetQuorum updates both thresholds, clamped to at least 1.
func (s *Settings) SetQuorum(ctx context.Context, minApproval, minRejection int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minApproval = clampQuorum(minApproval)
	s.minRejection = clampQuorum(minRejection)
	s.persistLocked(ctx)
	logger.Info(ctx, "settings", "quorum.set",
		slog.Int("min_approval", s.minApproval),
		slog.Int("min_rejection", s.minRejection),
	)
}

// TemplateActive reports whether the template index is active,
// defaulting to true when no override was recorded.
func (s *Settings) TemplateActive(idx int) bool {
	active, ok := s.TemplateOverride(idx)
	return !ok || active
}

// TemplateOverride returns the recorded activation toggle for the
// template index. ok is false when the index was never toggled and the
// catalog default applies.
func (s *Settings) TemplateOverride(idx int) (active, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok = s.tplOverride[idx]
	return active, ok
}

// SetTemplateActive records one template's activation toggle.
func (s *Settings) SetTemplateActive(ctx context.Context, idx int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tplOverride[idx] = active
	s.persistLocked(ctx)
	logger.Info(ctx, "settings", "template.toggle",
		slog.Int("template", idx),
		slog.Bool("active", active),
	)
}

func clampQuorum(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
