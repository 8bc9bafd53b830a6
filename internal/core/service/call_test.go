package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/medconnect/rtcore/internal/adapter/driven/persistence/memory"
	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

type callFixture struct {
	call     *Call
	repo     *memory.CallRepository
	presence *Presence
	gw       *fakeGateway
	clk      *clock.Mock
}

func newCallUnderTest() *callFixture {
	gw := newFakeGateway()
	clk := clock.NewMock()
	presence := NewPresence(gw, clk, grace)
	repo := memory.NewCallRepository()
	return &callFixture{
		call:     NewCall(repo, gw, presence, clk),
		repo:     repo,
		presence: presence,
		gw:       gw,
		clk:      clk,
	}
}

func (f *callFixture) online(users ...string) {
	for _, u := range users {
		f.presence.Register(ident(u), port.ConnID("conn-"+u))
		f.gw.connect(domain.UserID(u))
	}
	f.gw.reset()
}

func TestInitiateToOfflineReceiverIsMissed(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallAudio, "", false)
	if !errors.Is(err, domain.ErrUnreachablePeer) {
		t.Fatalf("expected unreachable peer, got %v", err)
	}
	if sess.Status != domain.CallMissed || sess.EndTime == nil {
		t.Fatalf("session must be missed with an end time, got %+v", sess)
	}

	failed := f.gw.forUser("alice", domain.EventCallFailed)
	if len(failed) != 1 {
		t.Fatalf("caller must get call_failed, got %d", len(failed))
	}
	if failed[0].Event.Data.(CallFailedPayload).Reason != "recipient offline" {
		t.Fatalf("unexpected reason: %+v", failed[0].Event.Data)
	}
	if got := f.gw.forUser("bob", domain.EventIncomingCall); len(got) != 0 {
		t.Fatal("offline receiver must never be notified")
	}

	stored, err := f.repo.Get(ctx, sess.CallID)
	if err != nil || stored.Status != domain.CallMissed {
		t.Fatalf("missed status must be persisted, got %+v (%v)", stored, err)
	}
}

func TestFullVideoCallLifecycle(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallVideo, "appt-7", false)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != domain.CallRinging {
		t.Fatalf("expected ringing, got %s", sess.Status)
	}

	incoming := f.gw.forUser("bob", domain.EventIncomingCall)
	if len(incoming) != 1 {
		t.Fatalf("receiver must get incoming_call, got %d", len(incoming))
	}
	in := incoming[0].Event.Data.(IncomingCallPayload)
	if in.Caller.ID != "alice" || in.CallType != "video" || in.RoomID != sess.RoomID.String() {
		t.Fatalf("unexpected incoming payload: %+v", in)
	}
	initiated := f.gw.forUser("alice", domain.EventCallInitiated)
	if len(initiated) != 1 {
		t.Fatalf("caller must get call_initiated, got %d", len(initiated))
	}

	if err := f.call.Answer(ctx, sess.CallID, "bob"); err != nil {
		t.Fatal(err)
	}
	if got := f.gw.byName(domain.EventCallAnswered); len(got) != 2 {
		t.Fatalf("both room members must see call_answered, got %d", len(got))
	}

	f.clk.Add(42 * time.Second)
	if err := f.call.End(ctx, sess.CallID, "alice"); err != nil {
		t.Fatal(err)
	}
	if got := f.gw.byName(domain.EventCallEnded); len(got) != 2 {
		t.Fatalf("both room members must see call_ended, got %d", len(got))
	}

	stored, err := f.repo.Get(ctx, sess.CallID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.CallEnded || stored.Duration != 42 {
		t.Fatalf("expected ended with duration 42, got %s / %d", stored.Status, stored.Duration)
	}
}

func TestIllegalTransitionsLeaveStatusUnchanged(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallAudio, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.call.Answer(ctx, sess.CallID, "bob"); err != nil {
		t.Fatal(err)
	}

	// Answer again from answered.
	if err := f.call.Answer(ctx, sess.CallID, "bob"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	// Reject after answer.
	if err := f.call.Reject(ctx, sess.CallID, "bob"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	stored, _ := f.repo.Get(ctx, sess.CallID)
	if stored.Status != domain.CallAnswered {
		t.Fatalf("status must be untouched by illegal transitions, got %s", stored.Status)
	}
}

func TestRejectNotifiesCallerOnly(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallAudio, "", false)
	if err != nil {
		t.Fatal(err)
	}
	f.gw.reset()

	if err := f.call.Reject(ctx, sess.CallID, "bob"); err != nil {
		t.Fatal(err)
	}
	rejected := f.gw.byName(domain.EventCallRejected)
	if len(rejected) != 1 {
		t.Fatalf("expected one call_rejected delivery, got %d", len(rejected))
	}
	stored, _ := f.repo.Get(ctx, sess.CallID)
	if stored.Status != domain.CallRejected || stored.EndTime == nil {
		t.Fatalf("expected persisted rejection with end time, got %+v", stored)
	}
}

func TestDuplicateEndIsIdempotent(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallAudio, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.call.Answer(ctx, sess.CallID, "bob"); err != nil {
		t.Fatal(err)
	}
	f.clk.Add(10 * time.Second)
	if err := f.call.End(ctx, sess.CallID, "alice"); err != nil {
		t.Fatal(err)
	}
	first, _ := f.repo.Get(ctx, sess.CallID)
	f.gw.reset()

	// Flaky transport redelivers the end.
	f.clk.Add(5 * time.Second)
	if err := f.call.End(ctx, sess.CallID, "alice"); err != nil {
		t.Fatalf("duplicate end must be a no-op, got %v", err)
	}
	second, _ := f.repo.Get(ctx, sess.CallID)
	if !second.EndTime.Equal(*first.EndTime) || second.Duration != first.Duration {
		t.Fatalf("duplicate end must not re-stamp: %v/%d vs %v/%d",
			first.EndTime, first.Duration, second.EndTime, second.Duration)
	}
	if got := f.gw.byName(domain.EventCallEnded); len(got) != 0 {
		t.Fatal("terminal sessions must not be re-notified")
	}
}

func TestDisconnectForcesActiveCallEnded(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	f.presence.OnLastHandleGone(f.call.HandleDisconnect)
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallVideo, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.call.Answer(ctx, sess.CallID, "bob"); err != nil {
		t.Fatal(err)
	}
	f.gw.reset()

	f.gw.disconnect("bob")
	f.presence.Unregister("bob", "conn-bob")

	stored, _ := f.repo.Get(ctx, sess.CallID)
	if stored.Status != domain.CallEnded {
		t.Fatalf("session must not dangle after disconnect, got %s", stored.Status)
	}
	ended := f.gw.byName(domain.EventCallEnded)
	if len(ended) == 0 {
		t.Fatal("remaining party must be told the call ended")
	}
	if ended[0].Event.Data.(CallEventPayload).Reason != "peer disconnected" {
		t.Fatalf("unexpected reason: %+v", ended[0].Event.Data)
	}
}

func TestConcurrentAnswerRejectSingleWinner(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallAudio, "", false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var answerErr, rejectErr error
	wg.Add(2)
	go func() { defer wg.Done(); answerErr = f.call.Answer(ctx, sess.CallID, "bob") }()
	go func() { defer wg.Done(); rejectErr = f.call.Reject(ctx, sess.CallID, "bob") }()
	wg.Wait()

	if (answerErr == nil) == (rejectErr == nil) {
		t.Fatalf("exactly one of answer/reject must win: answer=%v reject=%v", answerErr, rejectErr)
	}
	stored, _ := f.repo.Get(ctx, sess.CallID)
	if stored.Status != domain.CallAnswered && stored.Status != domain.CallRejected {
		t.Fatalf("session must land in a single consistent state, got %s", stored.Status)
	}
}

func TestRateCall(t *testing.T) {
	f := newCallUnderTest()
	f.online("alice", "bob")
	ctx := context.Background()

	sess, err := f.call.Initiate(ctx, ident("alice"), "bob", domain.CallAudio, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.call.Answer(ctx, sess.CallID, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := f.call.End(ctx, sess.CallID, "alice"); err != nil {
		t.Fatal(err)
	}

	if err := f.call.Rate(ctx, sess.CallID, "carol", domain.QualityGood, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider must not rate, got %v", err)
	}
	if err := f.call.Rate(ctx, sess.CallID, "alice", "amazing", ""); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown quality, got %v", err)
	}
	if err := f.call.Rate(ctx, sess.CallID, "alice", domain.QualityExcellent, "crisp audio"); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.repo.Get(ctx, sess.CallID)
	if stored.Quality != domain.QualityExcellent || stored.Notes != "crisp audio" {
		t.Fatalf("rating must persist, got %+v", stored)
	}
}

// failingCallRepo wraps the in-memory store and fails updates on demand.
type failingCallRepo struct {
	*memory.CallRepository
	failUpdate bool
}

func (r *failingCallRepo) Update(ctx context.Context, call *domain.CallSession) error {
	if r.failUpdate {
		return errors.New("store unavailable")
	}
	return r.CallRepository.Update(ctx, call)
}

func TestRejectRollbackKeepsPriorStatus(t *testing.T) {
	gw := newFakeGateway()
	clk := clock.NewMock()
	presence := NewPresence(gw, clk, grace)
	repo := &failingCallRepo{CallRepository: memory.NewCallRepository()}
	call := NewCall(repo, gw, presence, clk)
	ctx := context.Background()

	// A session rejected before it ever rang must roll back to
	// initiated, not ringing, when the store write fails.
	sess := &domain.CallSession{
		CallID:     "call-1",
		RoomID:     domain.NewCallRoomID("call-1"),
		CallerID:   "alice",
		ReceiverID: "bob",
		Kind:       domain.CallAudio,
		Status:     domain.CallInitiated,
		CreatedAt:  clk.Now(),
	}
	if err := repo.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}
	call.active[sess.CallID] = &activeCall{sess: sess}

	repo.failUpdate = true
	if err := call.Reject(ctx, sess.CallID, "bob"); err == nil {
		t.Fatal("expected the store failure to surface")
	}
	if sess.Status != domain.CallInitiated {
		t.Fatalf("rollback must restore initiated, got %s", sess.Status)
	}
	if sess.EndTime != nil {
		t.Fatal("rollback must clear the end stamp")
	}

	// With the store healthy again the retry goes through.
	repo.failUpdate = false
	if err := call.Reject(ctx, sess.CallID, "bob"); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
}
