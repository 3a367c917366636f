package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/pubsub"

	"github.com/rs/zerolog"
)

type harness struct {
	users   *fakeUserRepo
	posts   *fakePostRepo
	content *stubContent
	pub     *stubPublisher
	events  *recordingEvents
	archive *recordingArchive
	locker  *KeyedLocker
	svc     PostingService
}

func mustIST(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func newHarness(t *testing.T, now time.Time, users ...model.User) *harness {
	t.Helper()
	h := &harness{
		users:   newFakeUserRepo(users...),
		posts:   newFakePostRepo(),
		content: &stubContent{},
		pub:     &stubPublisher{},
		events:  &recordingEvents{},
		archive: &recordingArchive{},
		locker:  NewKeyedLocker(),
	}
	clock := func() time.Time { return now }
	h.posts.now = clock
	ledger := NewLedger(h.posts, now.Location())
	ledger.now = clock
	h.svc = NewPostingService(h.users, ledger, h.content, h.pub, h.locker, PostingOptions{
		FreeDailyLimit: 2,
		Events:         h.events,
		EventsTopic:    "posts",
		Archive:        h.archive,
	}, zerolog.Nop())
	return h
}

func freeUser(id int64) model.User {
	return model.User{ID: id, Username: "free", IsActive: true, SubscriptionTier: model.TierFree}
}

func paidUser(id int64) model.User {
	return model.User{ID: id, Username: "paid", IsActive: true, SubscriptionTier: model.TierPaid}
}

func TestRunCycleFreeTierQuotaSkipsPublish(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.posts.seedPosted(1, 2, now.Add(-time.Hour))
	h.posts.seedPending(1, "queued")

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Outcome != CycleQuotaReached {
		t.Fatalf("expected %s, got %s", CycleQuotaReached, res.Outcome)
	}
	if res.DailyCount != 2 {
		t.Fatalf("expected daily count 2, got %d", res.DailyCount)
	}
	if calls := h.pub.calls(); len(calls) != 0 {
		t.Fatalf("expected no publish attempts, got %v", calls)
	}
}

func TestRunCyclePaidTierHasNoCap(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, paidUser(1))
	h.posts.seedPosted(1, 5, now.Add(-time.Hour))
	id := h.posts.seedPending(1, "sixth of the day")

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if calls := h.pub.calls(); len(calls) != 1 || calls[0] != "sixth of the day" {
		t.Fatalf("expected one publish of the pending post, got %v", calls)
	}
	if res.Outcome != CyclePublished {
		t.Fatalf("expected %s, got %s", CyclePublished, res.Outcome)
	}
	if got := h.posts.get(id).DailyCount; got != 6 {
		t.Fatalf("expected daily count 6, got %d", got)
	}
}

func TestRunCycleFallbackPublishedOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	calls := h.pub.calls()
	if len(calls) != 1 || calls[0] != FallbackMessage {
		t.Fatalf("expected exactly one fallback publish, got %v", calls)
	}
	if res.Outcome != CycleFallbackPublished {
		t.Fatalf("expected %s, got %s", CycleFallbackPublished, res.Outcome)
	}
	posts := h.posts.all()
	if len(posts) != 1 {
		t.Fatalf("expected one recorded post, got %d", len(posts))
	}
	p := posts[0]
	if p.Status != model.PostStatusPosted || p.Content != FallbackMessage || p.DailyCount != 1 {
		t.Fatalf("unexpected fallback row %+v", p)
	}
	if p.PostedAt == nil || !p.PostedAt.Equal(now) {
		t.Fatalf("expected posted_at %v, got %v", now, p.PostedAt)
	}
}

func TestRunCycleFallbackFailureRecordsNothing(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.pub.fail = true

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Outcome != CyclePublishFailed {
		t.Fatalf("expected %s, got %s", CyclePublishFailed, res.Outcome)
	}
	if n := len(h.posts.all()); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestRunCyclePublishesPendingEndToEnd(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	id := h.posts.seedPending(1, "Breaking: X happened.")

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if calls := h.pub.calls(); len(calls) != 1 || calls[0] != "Breaking: X happened." {
		t.Fatalf("unexpected publish calls %v", calls)
	}
	p := h.posts.get(id)
	if p.Status != model.PostStatusPosted {
		t.Fatalf("expected posted, got %s", p.Status)
	}
	if p.DailyCount != 1 {
		t.Fatalf("expected daily count 1, got %d", p.DailyCount)
	}
	if p.ExternalID == nil || *p.ExternalID != "tweet-1" {
		t.Fatalf("expected external id tweet-1, got %v", p.ExternalID)
	}
	if res.PostID != id || res.ExternalID != "tweet-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.events.payloads) != 1 || h.events.topics[0] != "posts" {
		t.Fatalf("expected one event on topic posts, got %v", h.events.topics)
	}
	var evt pubsub.PostPublishedEvent
	if err := json.Unmarshal(h.events.payloads[0], &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.PostID != id || evt.DailyCount != 1 || evt.Fallback || evt.Type != pubsub.EventPostPublished {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestRunCyclePublishFailureLeavesPending(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	id := h.posts.seedPending(1, "will fail")
	h.pub.fail = true

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Outcome != CyclePublishFailed {
		t.Fatalf("expected %s, got %s", CyclePublishFailed, res.Outcome)
	}
	if len(h.pub.calls()) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(h.pub.calls()))
	}
	if p := h.posts.get(id); p.Status != model.PostStatusPending || p.PostedAt != nil {
		t.Fatalf("expected post to stay pending, got %+v", p)
	}
	if len(h.events.payloads) != 0 {
		t.Fatal("expected no event for a failed publish")
	}
}

func TestRunCycleIgnoresPostsFromPreviousDay(t *testing.T) {
	ist := mustIST(t)
	now := time.Date(2025, 3, 1, 0, 30, 0, 0, ist)
	h := newHarness(t, now, freeUser(1))
	// 23:50 IST the previous day is still "today" in UTC.
	h.posts.seedPosted(1, 2, time.Date(2025, 2, 28, 23, 50, 0, 0, ist))

	res, err := h.svc.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.DailyCount != 0 || !res.Published() {
		t.Fatalf("expected a fresh day, got %+v", res)
	}
}

func TestRunCycleUnknownUser(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now)

	if _, err := h.svc.RunCycle(context.Background(), 99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGenerateAndStoreOutsideWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.content.text = "something new"
	h.posts.seedPending(1, "queued")

	res, err := h.svc.GenerateAndStore(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if res.Outcome != CycleOutsideWindow {
		t.Fatalf("expected %s, got %s", CycleOutsideWindow, res.Outcome)
	}
	if h.content.calls != 0 || len(h.pub.calls()) != 0 {
		t.Fatalf("expected no fetch and no publish, got %d fetches %v publishes", h.content.calls, h.pub.calls())
	}
}

func TestGenerateAndStoreCustomWindowBoundsInclusive(t *testing.T) {
	ist := mustIST(t)
	hours := [2]int{6, 8}
	u := freeUser(1)
	u.Preferences.PostingHours = &hours

	for _, hour := range []int{6, 8} {
		h := newHarness(t, time.Date(2025, 3, 1, hour, 59, 0, 0, ist), u)
		h.content.text = "news"
		res, err := h.svc.GenerateAndStore(context.Background(), 1)
		if err != nil {
			t.Fatalf("hour %d: %v", hour, err)
		}
		if res.Outcome != CyclePublished {
			t.Fatalf("hour %d: expected %s, got %s", hour, CyclePublished, res.Outcome)
		}
	}
}

func TestGenerateAndStoreNormalizesStoresAndPublishes(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.content.text = "  Breaking:\n  X   happened.  "

	res, err := h.svc.GenerateAndStore(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if res.Generated != "Breaking: X happened." {
		t.Fatalf("unexpected generated text %q", res.Generated)
	}
	if calls := h.pub.calls(); len(calls) != 1 || calls[0] != res.Generated {
		t.Fatalf("expected the generated text to be published, got %v", calls)
	}
	if res.Outcome != CyclePublished {
		t.Fatalf("expected %s, got %s", CyclePublished, res.Outcome)
	}
	if len(h.archive.raws) != 1 || h.archive.raws[0] != h.content.text {
		t.Fatalf("expected raw text archived, got %v", h.archive.raws)
	}
	var evt pubsub.PostPublishedEvent
	if err := json.Unmarshal(h.events.payloads[0], &evt); err != nil || evt.Trigger != TriggerScheduled {
		t.Fatalf("unexpected event %s (err %v)", h.events.payloads[0], err)
	}
}

func TestGenerateAndStorePublishesOldestPendingFirst(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.posts.seedPending(1, "older")
	h.content.text = "newer"

	if _, err := h.svc.GenerateAndStore(context.Background(), 1); err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if calls := h.pub.calls(); len(calls) != 1 || calls[0] != "older" {
		t.Fatalf("expected oldest pending post published, got %v", calls)
	}
	pending := 0
	for _, p := range h.posts.all() {
		if p.Status == model.PostStatusPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected the new post to stay pending, got %d pending", pending)
	}
}

func TestGenerateAndStoreEmptyContentFallsBack(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))

	res, err := h.svc.GenerateAndStore(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if res.Outcome != CycleFallbackPublished || res.Generated != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.archive.raws) != 0 {
		t.Fatal("expected nothing archived")
	}
}

func TestGenerateAndStoreQuotaSkipsFetch(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.posts.seedPosted(1, 2, now.Add(-time.Minute))
	h.content.text = "news"

	res, err := h.svc.GenerateAndStore(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateAndStore: %v", err)
	}
	if res.Outcome != CycleQuotaReached || h.content.calls != 0 || len(h.pub.calls()) != 0 {
		t.Fatalf("expected quota stop before fetch, got %+v fetches=%d", res, h.content.calls)
	}
}

func TestTriggerNowIgnoresWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.content.text = "late night news."

	res, err := h.svc.TriggerNow(context.Background(), 1)
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if res.Trigger != TriggerManual || res.Outcome != CyclePublished || res.Generated != "late night news." {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCycleRejectedWhileLocked(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.posts.seedPending(1, "queued")

	unlock, ok, _ := h.locker.TryLock(context.Background(), 1)
	if !ok {
		t.Fatal("expected to acquire lock")
	}
	if _, err := h.svc.RunCycle(context.Background(), 1); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	if len(h.pub.calls()) != 0 {
		t.Fatal("expected no publish while locked")
	}
	unlock()

	if _, err := h.svc.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("RunCycle after unlock: %v", err)
	}
}

func TestConcurrentTriggerDuringScheduledCycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.content.text = "news"
	h.pub.block = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var scheduledErr error
	go func() {
		defer wg.Done()
		_, scheduledErr = h.svc.GenerateAndStore(context.Background(), 1)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(h.pub.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled cycle never reached publish")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := h.svc.TriggerNow(context.Background(), 1); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	close(h.pub.block)
	wg.Wait()
	if scheduledErr != nil {
		t.Fatalf("scheduled cycle: %v", scheduledErr)
	}
	if n := len(h.pub.calls()); n != 1 {
		t.Fatalf("expected one publish, got %d", n)
	}
}

func TestSharedLockExcludesSecondProcess(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.posts.seedPosted(1, 1, now.Add(-time.Hour))
	h.posts.seedPending(1, "queued")
	h.pub.block = make(chan struct{})

	// shared stands in for the database lock both processes see
	shared := NewKeyedLocker()
	ledger := NewLedger(h.posts, now.Location())
	ledger.now = func() time.Time { return now }
	newProcess := func() PostingService {
		return NewPostingService(h.users, ledger, h.content, h.pub, ChainLockers(NewKeyedLocker(), shared), PostingOptions{FreeDailyLimit: 2}, zerolog.Nop())
	}
	app, worker := newProcess(), newProcess()

	var wg sync.WaitGroup
	wg.Add(1)
	var appErr error
	go func() {
		defer wg.Done()
		_, appErr = app.RunCycle(context.Background(), 1)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(h.pub.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first process never reached publish")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := worker.RunCycle(context.Background(), 1); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress from second process, got %v", err)
	}
	close(h.pub.block)
	wg.Wait()
	if appErr != nil {
		t.Fatalf("first process: %v", appErr)
	}
	if n := len(h.pub.calls()); n != 1 {
		t.Fatalf("expected one publish across processes, got %d", n)
	}
}

func TestLockErrorAbortsCycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, mustIST(t))
	h := newHarness(t, now, freeUser(1))
	h.posts.seedPending(1, "queued")

	ledger := NewLedger(h.posts, now.Location())
	boom := errors.New("db down")
	svc := NewPostingService(h.users, ledger, h.content, h.pub, failingLocker{err: boom}, PostingOptions{FreeDailyLimit: 2}, zerolog.Nop())

	if _, err := svc.RunCycle(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if len(h.pub.calls()) != 0 {
		t.Fatal("expected no publish without the lock")
	}
}
