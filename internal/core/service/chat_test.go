package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/medconnect/rtcore/internal/adapter/driven/persistence/memory"
	"github.com/medconnect/rtcore/internal/core/domain"
)

func newChatUnderTest() (*Chat, *Presence, *fakeGateway, *clock.Mock) {
	gw := newFakeGateway()
	clk := clock.NewMock()
	presence := NewPresence(gw, clk, grace)
	chat := NewChat(memory.NewMessageRepository(), gw, presence, clk)
	return chat, presence, gw, clk
}

func TestSendValidation(t *testing.T) {
	chat, _, _, _ := newChatUnderTest()
	ctx := context.Background()

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"whitespace body", "   "},
		{"oversized body", strings.Repeat("x", domain.MaxMessageLength+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chat.Send(ctx, ident("alice"), "bob", tc.body, domain.MessageText, "")
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := chat.Send(ctx, ident("alice"), "", "hi", domain.MessageText, ""); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing receiver, got %v", err)
	}
}

func TestSendToOnlineReceiver(t *testing.T) {
	chat, presence, gw, _ := newChatUnderTest()
	ctx := context.Background()

	presence.Register(ident("bob"), "c1")
	gw.reset()

	if _, err := chat.Send(ctx, ident("alice"), "bob", "hello", domain.MessageText, ""); err != nil {
		t.Fatal(err)
	}

	if got := gw.forUser("bob", domain.EventNewMessage); len(got) != 1 {
		t.Fatalf("receiver should get one new_message, got %d", len(got))
	}
	if got := gw.forUser("alice", domain.EventNewMessage); len(got) != 1 {
		t.Fatalf("sender should get a confirmation copy, got %d", len(got))
	}
	notifs := gw.forUser("bob", domain.EventMessageNotification)
	if len(notifs) != 1 {
		t.Fatalf("receiver should get one notification, got %d", len(notifs))
	}
}

func TestOfflineMessageRetrievableViaHistory(t *testing.T) {
	chat, _, gw, _ := newChatUnderTest()
	ctx := context.Background()

	// Bob is offline: persistence happens, delivery does not.
	if _, err := chat.Send(ctx, ident("alice"), "bob", "are you there?", domain.MessageText, ""); err != nil {
		t.Fatal(err)
	}
	if got := gw.forUser("bob", domain.EventNewMessage); len(got) != 0 {
		t.Fatal("offline receiver must not get a live event")
	}

	msgs, err := chat.History(ctx, "bob", "alice", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "are you there?" {
		t.Fatalf("message must be retrievable after reconnect, got %+v", msgs)
	}
	if msgs[0].IsRead {
		t.Fatal("fetched message was created unread")
	}

	// History marks the counterpart's page read.
	summaries, err := chat.Summaries(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].UnreadCount != 0 {
		t.Fatalf("expected unread count 0 after history fetch, got %+v", summaries)
	}
}

func TestMarkReadEmitsReceiptWhenCounterpartOnline(t *testing.T) {
	chat, presence, gw, _ := newChatUnderTest()
	ctx := context.Background()

	presence.Register(ident("alice"), "c1")
	if _, err := chat.Send(ctx, ident("alice"), "bob", "ping", domain.MessageText, ""); err != nil {
		t.Fatal(err)
	}
	gw.reset()

	if err := chat.MarkRead(ctx, "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	receipts := gw.forUser("alice", domain.EventMessagesRead)
	if len(receipts) != 1 {
		t.Fatalf("expected one read receipt, got %d", len(receipts))
	}
	if receipts[0].Event.Data.(ReadReceiptPayload).ReadBy != "bob" {
		t.Fatalf("receipt must name the reader")
	}

	// Nothing left unread: a second mark emits nothing.
	gw.reset()
	if err := chat.MarkRead(ctx, "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	if got := gw.forUser("alice", domain.EventMessagesRead); len(got) != 0 {
		t.Fatal("no receipt expected when nothing was unread")
	}
}

func TestSummariesGroupByCounterpart(t *testing.T) {
	chat, _, _, clk := newChatUnderTest()
	ctx := context.Background()

	send := func(from, to, body string) {
		t.Helper()
		if _, err := chat.Send(ctx, ident(from), domain.UserID(to), body, domain.MessageText, ""); err != nil {
			t.Fatal(err)
		}
		clk.Add(time.Second)
	}

	send("alice", "bob", "first")
	send("bob", "alice", "second")
	send("carol", "alice", "third")

	summaries, err := chat.Summaries(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(summaries))
	}
	// Most recent first: carol, then bob.
	if summaries[0].CounterpartID != "carol" || summaries[1].CounterpartID != "bob" {
		t.Fatalf("unexpected ordering: %s, %s", summaries[0].CounterpartID, summaries[1].CounterpartID)
	}
	if summaries[1].LastMessage.Body != "second" {
		t.Fatalf("last message must be the newest regardless of direction, got %q", summaries[1].LastMessage.Body)
	}
	if summaries[0].UnreadCount != 1 || summaries[1].UnreadCount != 1 {
		t.Fatalf("unexpected unread counts: %d, %d", summaries[0].UnreadCount, summaries[1].UnreadCount)
	}
}

func TestHelplineFanOutExcludesSender(t *testing.T) {
	chat, _, gw, _ := newChatUnderTest()
	ctx := context.Background()

	gw.JoinRoom(domain.HelplineRoom, "alice")
	gw.JoinRoom(domain.HelplineRoom, "agent1")
	gw.JoinRoom(domain.HelplineRoom, "agent2")

	msg, err := chat.SendHelpline(ctx, ident("alice"), "I need help", "T-42")
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Helpline || msg.ReceiverID != "" {
		t.Fatalf("helpline message must have no receiver and the helpline flag, got %+v", msg)
	}

	events := gw.byName(domain.EventNewHelplineMessage)
	if len(events) != 2 {
		t.Fatalf("expected fan-out to both agents only, got %d deliveries", len(events))
	}
	for _, e := range events {
		if strings.Contains(e.Target, ":alice") {
			t.Fatal("sender must not receive its own helpline message")
		}
		if e.Event.Data.(MessagePayload).TicketID != "T-42" {
			t.Fatal("ticket id must ride along")
		}
	}
}

func TestDeleteOnlyBySender(t *testing.T) {
	chat, _, _, _ := newChatUnderTest()
	ctx := context.Background()

	msg, err := chat.Send(ctx, ident("alice"), "bob", "oops", domain.MessageText, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := chat.Delete(ctx, msg.ID, "bob"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("recipient must not delete, got %v", err)
	}
	if err := chat.Delete(ctx, msg.ID, "alice"); err != nil {
		t.Fatalf("sender delete failed: %v", err)
	}
}

func TestTypingEventsScopedToPairRoom(t *testing.T) {
	chat, _, gw, _ := newChatUnderTest()

	chat.JoinChat("alice", "bob")
	chat.JoinChat("bob", "alice")

	chat.TypingStart(ident("alice"), "bob")
	events := gw.byName(domain.EventUserTyping)
	if len(events) != 1 {
		t.Fatalf("expected typing event to reach only bob, got %d", len(events))
	}
	if !strings.HasSuffix(events[0].Target, ":bob") {
		t.Fatalf("typing event misrouted: %s", events[0].Target)
	}

	chat.TypingStop(ident("alice"), "bob")
	if got := gw.byName(domain.EventUserStoppedTyping); len(got) != 1 {
		t.Fatalf("expected one stopped-typing event, got %d", len(got))
	}
}

func TestLeaveChatStopsTypingDelivery(t *testing.T) {
	chat, _, gw, _ := newChatUnderTest()

	chat.JoinChat("alice", "bob")
	chat.JoinChat("bob", "alice")
	chat.LeaveChat("bob", "alice")

	chat.TypingStart(ident("alice"), "bob")
	if got := gw.byName(domain.EventUserTyping); len(got) != 0 {
		t.Fatalf("typing must not reach a user who left the chat, got %d events", len(got))
	}
}
