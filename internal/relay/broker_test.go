package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	"github.com/Noha9900/advance-filestorebot/internal/presence"
)

const operatorID = int64(1)

type sentCopy struct {
	to, from int64
	msg      int
	replyTo  int
}

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	copies []sentCopy
	sent   []platform.OutgoingMessage
}

func (f *fakeMessenger) CopyMessage(ctx context.Context, to, from int64, messageID int, opts platform.CopyOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.copies = append(f.copies, sentCopy{to: to, from: from, msg: messageID, replyTo: opts.ReplyTo})
	return 5000 + f.nextID, nil
}

func (f *fakeMessenger) SendMessage(ctx context.Context, msg platform.OutgoingMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, msg)
	return 5000 + f.nextID, nil
}

// toUsers returns everything sent or copied to a chat other than the operator.
func (f *fakeMessenger) toUsers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.copies {
		if c.to != operatorID {
			n++
		}
	}
	for _, m := range f.sent {
		if m.ChatID != operatorID {
			n++
		}
	}
	return n
}

type fakeRepo struct {
	mu           sync.Mutex
	sessions     map[int64]domain.RelaySession
	correlations map[int]domain.RelayCorrelation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[int64]domain.RelaySession), correlations: make(map[int]domain.RelayCorrelation)}
}

func (f *fakeRepo) GetRelaySession(ctx context.Context, userID int64) (*domain.RelaySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeRepo) UpsertRelaySession(ctx context.Context, s *domain.RelaySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.UserID] = *s
	return nil
}

func (f *fakeRepo) SaveCorrelation(ctx context.Context, c *domain.RelayCorrelation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.correlations[c.OperatorMessageID] = *c
	return nil
}

func (f *fakeRepo) GetCorrelation(ctx context.Context, id int) (*domain.RelayCorrelation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.correlations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

var ann = platform.User{ID: 42, FirstName: "Ann", Username: "ann"}

func newTestBroker() (*Broker, *fakeMessenger, *fakeRepo, *clock.Fake, *presence.Tracker) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	msgr := &fakeMessenger{}
	repo := newFakeRepo()
	tr := presence.NewTracker(clk, 5*time.Minute)
	b := NewBroker(msgr, repo, tr, Config{OperatorID: operatorID, MaxVideo: time.Minute, Clock: clk})
	return b, msgr, repo, clk, tr
}

func TestOpenNotifiesOperatorWithTag(t *testing.T) {
	b, msgr, repo, _, _ := newTestBroker()
	s, err := b.Open(context.Background(), ann)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Active || s.SessionID == "" {
		t.Fatalf("session = %+v", s)
	}
	if len(msgr.sent) != 1 || msgr.sent[0].ChatID != operatorID || !strings.Contains(msgr.sent[0].Text, "#ID42") {
		t.Fatalf("operator notice = %+v", msgr.sent)
	}
	if len(repo.correlations) != 1 {
		t.Fatalf("correlations = %d, want 1", len(repo.correlations))
	}

	again, err := b.Open(context.Background(), ann)
	if err != nil || again.SessionID != s.SessionID || len(msgr.sent) != 1 {
		t.Fatal("re-opening an active session should be a no-op")
	}
}

func TestForwardRequiresActiveSession(t *testing.T) {
	b, msgr, _, _, _ := newTestBroker()
	err := b.Forward(context.Background(), &platform.IncomingMessage{ChatID: 42, MessageID: 3, From: ann, Kind: platform.KindText, Text: "hi"})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("error = %v, want ErrNotActive", err)
	}
	if len(msgr.sent)+len(msgr.copies) != 0 {
		t.Fatal("nothing should be relayed without a session")
	}
}

func TestForwardTagsAndCorrelates(t *testing.T) {
	b, msgr, repo, _, _ := newTestBroker()
	ctx := context.Background()
	if _, err := b.Open(ctx, ann); err != nil {
		t.Fatal(err)
	}

	if err := b.Forward(ctx, &platform.IncomingMessage{ChatID: 42, MessageID: 3, From: ann, Kind: platform.KindText, Text: "help"}); err != nil {
		t.Fatal(err)
	}
	header := msgr.sent[len(msgr.sent)-1]
	if header.ChatID != operatorID || !strings.Contains(header.Text, "#ID42") {
		t.Fatalf("header = %+v", header)
	}
	if len(msgr.copies) != 1 || msgr.copies[0].to != operatorID || msgr.copies[0].from != 42 || msgr.copies[0].replyTo == 0 {
		t.Fatalf("copies = %+v", msgr.copies)
	}
	if len(repo.correlations) != 3 {
		t.Fatalf("correlations = %d, want notice + header + copy", len(repo.correlations))
	}
}

func TestForwardRefusesLongVideo(t *testing.T) {
	b, msgr, _, _, _ := newTestBroker()
	ctx := context.Background()
	_, _ = b.Open(ctx, ann)
	sentBefore := len(msgr.sent)

	err := b.Forward(ctx, &platform.IncomingMessage{ChatID: 42, MessageID: 4, From: ann, Kind: platform.KindVideo, VideoDuration: 600})
	if !errors.Is(err, ErrContentRefused) {
		t.Fatalf("error = %v, want ErrContentRefused", err)
	}
	if len(msgr.sent) != sentBefore || len(msgr.copies) != 0 {
		t.Fatal("refused content reached the operator")
	}

	if err := b.Forward(ctx, &platform.IncomingMessage{ChatID: 42, MessageID: 5, From: ann, Kind: platform.KindVideo, VideoDuration: 30}); err != nil {
		t.Fatalf("short video refused: %v", err)
	}
}

func TestReplyRoutesThroughCorrelation(t *testing.T) {
	b, msgr, _, _, _ := newTestBroker()
	ctx := context.Background()
	_, _ = b.Open(ctx, ann)
	_ = b.Forward(ctx, &platform.IncomingMessage{ChatID: 42, MessageID: 3, From: ann, Kind: platform.KindPhoto})

	// The operator replies to the copied photo, which carries no tag itself.
	quoted := &platform.IncomingMessage{MessageID: 5000 + len(msgr.sent) + len(msgr.copies), Kind: platform.KindPhoto}
	to, err := b.Reply(ctx, &platform.IncomingMessage{ChatID: operatorID, MessageID: 77, Kind: platform.KindText, Text: "thanks", ReplyTo: quoted})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if to != 42 {
		t.Fatalf("recipient = %d, want 42", to)
	}
	last := msgr.copies[len(msgr.copies)-1]
	if last.to != 42 || last.from != operatorID || last.msg != 77 {
		t.Fatalf("reply copy = %+v", last)
	}
}

func TestReplyFallsBackToTag(t *testing.T) {
	b, msgr, repo, _, _ := newTestBroker()
	ctx := context.Background()
	_ = repo.UpsertRelaySession(ctx, &domain.RelaySession{UserID: 99, SessionID: "old", Active: true})

	quoted := &platform.IncomingMessage{MessageID: 1234, Text: "💬 Message from Bob\n#ID99"}
	to, err := b.Reply(ctx, &platform.IncomingMessage{ChatID: operatorID, MessageID: 8, Text: "hi", ReplyTo: quoted})
	if err != nil || to != 99 {
		t.Fatalf("Reply() = %d, %v", to, err)
	}
	if msgr.toUsers() != 1 {
		t.Fatalf("sends to users = %d, want 1", msgr.toUsers())
	}
}

func TestReplyUncorrelated(t *testing.T) {
	tests := []struct {
		name   string
		quoted *platform.IncomingMessage
	}{
		{"not a reply", nil},
		{"quoted without tag", &platform.IncomingMessage{MessageID: 31337, Text: "just some text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, msgr, _, _, _ := newTestBroker()
			_, err := b.Reply(context.Background(), &platform.IncomingMessage{ChatID: operatorID, MessageID: 9, Text: "hello?", ReplyTo: tt.quoted})
			if !errors.Is(err, ErrUnknownRecipient) {
				t.Fatalf("error = %v, want ErrUnknownRecipient", err)
			}
			if msgr.toUsers() != 0 {
				t.Fatal("a message reached a user")
			}
			if len(msgr.sent) != 1 || msgr.sent[0].ChatID != operatorID || !strings.Contains(msgr.sent[0].Text, "Could not determine recipient") {
				t.Fatalf("operator answer = %+v", msgr.sent)
			}
		})
	}
}

func TestReplyToClosedSession(t *testing.T) {
	b, msgr, _, _, _ := newTestBroker()
	ctx := context.Background()
	_, _ = b.Open(ctx, ann)
	if err := b.Close(ctx, ann.ID, false); err != nil {
		t.Fatal(err)
	}
	sentBefore := msgr.toUsers()

	quoted := &platform.IncomingMessage{MessageID: 1, Text: "#ID42"}
	_, err := b.Reply(ctx, &platform.IncomingMessage{ChatID: operatorID, MessageID: 10, Text: "late", ReplyTo: quoted})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("error = %v, want ErrNotActive", err)
	}
	if msgr.toUsers() != sentBefore {
		t.Fatal("reply to a closed session reached the user")
	}
}

func TestCloseNotifiesOtherParty(t *testing.T) {
	b, msgr, repo, _, _ := newTestBroker()
	ctx := context.Background()

	_, _ = b.Open(ctx, ann)
	if err := b.Close(ctx, ann.ID, true); err != nil {
		t.Fatal(err)
	}
	last := msgr.sent[len(msgr.sent)-1]
	if last.ChatID != ann.ID {
		t.Fatalf("operator close should notify the user, got %+v", last)
	}
	s := repo.sessions[ann.ID]
	if s.Active || s.ClosedAt == nil {
		t.Fatalf("session = %+v", s)
	}
	if err := b.Close(ctx, ann.ID, true); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second Close() error = %v", err)
	}

	_, _ = b.Open(ctx, ann)
	if err := b.Close(ctx, ann.ID, false); err != nil {
		t.Fatal(err)
	}
	last = msgr.sent[len(msgr.sent)-1]
	if last.ChatID != operatorID || !strings.Contains(last.Text, "#ID42") {
		t.Fatalf("user close should notify the operator, got %+v", last)
	}
}

func TestIsOperatorOnline(t *testing.T) {
	b, _, _, clk, tr := newTestBroker()
	if b.IsOperatorOnline() {
		t.Fatal("online before any operator activity")
	}
	tr.Touch()
	if !b.IsOperatorOnline() {
		t.Fatal("offline right after activity")
	}
	clk.Advance(6 * time.Minute)
	if b.IsOperatorOnline() {
		t.Fatal("online after the window passed")
	}
}
