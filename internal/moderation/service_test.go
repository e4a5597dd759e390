package moderation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeNotifier struct {
	mu         sync.Mutex
	userMsgs   map[int64][]string
	broadcasts map[int64][]string
	failUser   bool
	failBcast  bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		userMsgs:   make(map[int64][]string),
		broadcasts: make(map[int64][]string),
	}
}

func (f *fakeNotifier) NotifyUser(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUser {
		return errors.New("blocked by user")
	}
	f.userMsgs[userID] = append(f.userMsgs[userID], text)
	return nil
}

func (f *fakeNotifier) Broadcast(_ context.Context, channelID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBcast {
		return errors.New("channel unreachable")
	}
	f.broadcasts[channelID] = append(f.broadcasts[channelID], text)
	return nil
}

func (f *fakeNotifier) userCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.userMsgs[userID])
}

func (f *fakeNotifier) broadcastCount(channelID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts[channelID])
}

type fakeQuorum struct {
	minApproval  int
	minRejection int
	channel      int64
}

func (f fakeQuorum) MinApproval() int  { return f.minApproval }
func (f fakeQuorum) MinRejection() int { return f.minRejection }
func (f fakeQuorum) Channel() int64    { return f.channel }

func newTestService(t *testing.T, q fakeQuorum) (*Service, Store, *fakeNotifier) {
	t.Helper()
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "posts.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	notifier := newFakeNotifier()
	return NewService(store, notifier, q), store, notifier
}

func submitPost(t *testing.T, svc *Service) *Post {
	t.Helper()
	post := NewPost("Feedback", map[string]any{"Name": "Alice", "Age": "30"}, 42, "alice", "Alice A")
	if err := svc.Submit(context.Background(), post); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return post
}

func TestApproveIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, fakeQuorum{minApproval: 3, minRejection: 3})
	post := submitPost(t, svc)

	for i := 0; i < 2; i++ {
		outcome, err := svc.Approve(ctx, post.ID, 100)
		if err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
		if outcome != OutcomePending {
			t.Fatalf("approve %d outcome = %v", i, outcome)
		}
	}

	got, err := store.Get(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ApprovedBy) != 1 {
		t.Fatalf("approval count = %d after duplicate vote", len(got.ApprovedBy))
	}
}

func TestApproveQuorumBoundary(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestService(t, fakeQuorum{minApproval: 2, minRejection: 2, channel: -100})
	post := submitPost(t, svc)

	outcome, err := svc.Approve(ctx, post.ID, 1)
	if err != nil || outcome != OutcomePending {
		t.Fatalf("first vote: %v %v", outcome, err)
	}
	if _, err := store.Get(ctx, post.ID); err != nil {
		t.Fatalf("post gone before quorum: %v", err)
	}

	outcome, err = svc.Approve(ctx, post.ID, 2)
	if err != nil || outcome != OutcomeApproved {
		t.Fatalf("quorum vote: %v %v", outcome, err)
	}
	if _, err := store.Get(ctx, post.ID); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("post still present after quorum: %v", err)
	}
	if notifier.userCount(42) != 1 {
		t.Fatalf("submitter notifications = %d", notifier.userCount(42))
	}
	if notifier.broadcastCount(-100) != 1 {
		t.Fatalf("broadcasts = %d", notifier.broadcastCount(-100))
	}

	// the vote past quorum observes the removal
	outcome, err = svc.Approve(ctx, post.ID, 3)
	if err != nil || outcome != OutcomeAlreadyResolved {
		t.Fatalf("late vote: %v %v", outcome, err)
	}
	if notifier.userCount(42) != 1 {
		t.Fatal("late vote re-notified the submitter")
	}
}

func TestRejectQuorumSkipsBroadcast(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestService(t, fakeQuorum{minApproval: 2, minRejection: 1, channel: -100})
	post := submitPost(t, svc)

	outcome, err := svc.Reject(ctx, post.ID, 1)
	if err != nil || outcome != OutcomeRejected {
		t.Fatalf("reject: %v %v", outcome, err)
	}
	if _, err := store.Get(ctx, post.ID); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("post still present: %v", err)
	}
	if notifier.userCount(42) != 1 {
		t.Fatalf("submitter notifications = %d", notifier.userCount(42))
	}
	if notifier.broadcastCount(-100) != 0 {
		t.Fatal("rejection broadcast to channel")
	}
}

func TestVoteSwitchesSides(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, fakeQuorum{minApproval: 3, minRejection: 3})
	post := submitPost(t, svc)

	if _, err := svc.Approve(ctx, post.ID, 7); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Reject(ctx, post.ID, 7); err != nil {
		t.Fatalf("reject: %v", err)
	}

	got, err := store.Get(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.HasApproval(7) {
		t.Fatal("admin still in approval set after switching")
	}
	if !got.HasRejection(7) {
		t.Fatal("admin missing from rejection set")
	}
}

func TestBroadcastFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestService(t, fakeQuorum{minApproval: 1, minRejection: 1, channel: -100})
	notifier.failBcast = true
	notifier.failUser = true
	post := submitPost(t, svc)

	outcome, err := svc.Approve(ctx, post.ID, 1)
	if err != nil || outcome != OutcomeApproved {
		t.Fatalf("approve: %v %v", outcome, err)
	}
	if _, err := store.Get(ctx, post.ID); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("delivery failure rolled the resolution back: %v", err)
	}
}

func TestConcurrentVotesResolveOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newTestService(t, fakeQuorum{minApproval: 1, minRejection: 1})
	post := submitPost(t, svc)

	const voters = 8
	outcomes := make(chan Outcome, voters)
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(adminID int64) {
			defer wg.Done()
			var outcome Outcome
			var err error
			if adminID%2 == 0 {
				outcome, err = svc.Approve(ctx, post.ID, adminID)
			} else {
				outcome, err = svc.Reject(ctx, post.ID, adminID)
			}
			if err != nil {
				t.Errorf("vote %d: %v", adminID, err)
				return
			}
			outcomes <- outcome
		}(int64(i + 1))
	}
	wg.Wait()
	close(outcomes)

	terminal := 0
	for outcome := range outcomes {
		switch outcome {
		case OutcomeApproved, OutcomeRejected:
			terminal++
		case OutcomeAlreadyResolved, OutcomePending:
		}
	}
	if terminal != 1 {
		t.Fatalf("terminal outcomes = %d, expected exactly 1", terminal)
	}
	if notifier.userCount(42) != 1 {
		t.Fatalf("submitter notifications = %d", notifier.userCount(42))
	}
}

func TestJSONStoreReloadsPosts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	post := NewPost("Feedback", map[string]any{"Name": "Alice"}, 42, "alice", "Alice A")
	post.ApprovedBy = []int64{1}
	if err := store.Add(ctx, post); err != nil {
		t.Fatalf("add: %v", err)
	}

	reloaded, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.Get(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Feedback" || got.UserID != 42 || len(got.ApprovedBy) != 1 {
		t.Fatalf("reloaded post mismatch: %+v", got)
	}
	if got.Data["Name"] != "Alice" {
		t.Fatalf("reloaded data mismatch: %v", got.Data)
	}
}

func TestPostMessage(t *testing.T) {
	post := NewPost("Event", map[string]any{
		"Date": "2024-01-15",
		"Tags": []string{"music", "live"},
	}, 42, "alice", "Alice A")

	msg := post.Message()
	for _, want := range []string{
		"Event",
		"Date: 2024-01-15",
		"Tags:\n  - music\n  - live",
		"Author: @alice",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	post.Username = ""
	if msg := post.Message(); !strings.Contains(msg, "Author: Alice A") {
		t.Errorf("fallback author missing:\n%s", msg)
	}
}

func TestPendingListsAllOpenPosts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, fakeQuorum{minApproval: 2, minRejection: 2})

	for i := 0; i < 3; i++ {
		post := NewPost(fmt.Sprintf("T%d", i), map[string]any{"k": "v"}, int64(i), "", "U")
		if err := svc.Submit(ctx, post); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	pending, err := svc.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending count = %d", len(pending))
	}
}
