package gate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
)

type staticSource struct {
	req *domain.GateRequirement
	err error
}

func (s *staticSource) GetGateRequirement(ctx context.Context) (*domain.GateRequirement, error) {
	return s.req, s.err
}

type memberKey struct{ chat, user int64 }

type fakeMembers struct {
	mu      sync.Mutex
	status  map[memberKey]platform.MemberStatus
	errs    map[int64]error
	queries []int64
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{status: make(map[memberKey]platform.MemberStatus), errs: make(map[int64]error)}
}

func (f *fakeMembers) ChatMember(ctx context.Context, chatID, userID int64) (platform.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, chatID)
	if err := f.errs[chatID]; err != nil {
		return "", err
	}
	if s, ok := f.status[memberKey{chatID, userID}]; ok {
		return s, nil
	}
	return platform.StatusLeft, nil
}

func (f *fakeMembers) join(chat, user int64) {
	f.mu.Lock()
	f.status[memberKey{chat, user}] = platform.StatusMember
	f.mu.Unlock()
}

func (f *fakeMembers) reset() {
	f.mu.Lock()
	f.queries = nil
	f.mu.Unlock()
}

var (
	primary = domain.ChannelRequirement{ChatID: -100, Name: "Main", JoinLink: "https://t.me/main"}
	extraA  = domain.ChannelRequirement{ChatID: -201, Name: "A", JoinLink: "https://t.me/a"}
	extraB  = domain.ChannelRequirement{ChatID: -202, Name: "B", JoinLink: "https://t.me/b"}
)

func TestZeroRequirementsClearsImmediately(t *testing.T) {
	for _, req := range []*domain.GateRequirement{nil, {}} {
		members := newFakeMembers()
		g := New(&staticSource{req: req}, members, nil)
		s := NewSession(1, "abc123")

		out, err := g.Evaluate(context.Background(), s)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if !out.Cleared() || len(out.Unmet) != 0 || s.Stage != StageCleared {
			t.Fatalf("outcome = %+v, stage = %v", out, s.Stage)
		}
		if len(members.queries) != 0 {
			t.Fatalf("unexpected membership queries: %v", members.queries)
		}
	}
}

func TestPrimaryRetryDoesNotRecheck(t *testing.T) {
	members := newFakeMembers()
	g := New(&staticSource{req: &domain.GateRequirement{Primary: &primary, Additional: []domain.ChannelRequirement{extraA}}}, members, nil)
	s := NewSession(7, "tok")
	ctx := context.Background()

	out, err := g.Evaluate(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if out.Stage != StagePrimaryCheck || len(out.Unmet) != 1 || out.Unmet[0].ChatID != primary.ChatID {
		t.Fatalf("first outcome = %+v", out)
	}

	members.join(primary.ChatID, 7)
	out, _ = g.Evaluate(ctx, s)
	if out.Stage != StageAdditionalCheck || len(out.Unmet) != 1 || out.Unmet[0].ChatID != extraA.ChatID {
		t.Fatalf("second outcome = %+v", out)
	}

	members.reset()
	members.join(extraA.ChatID, 7)
	out, _ = g.Evaluate(ctx, s)
	if !out.Cleared() {
		t.Fatalf("third outcome = %+v", out)
	}
	for _, q := range members.queries {
		if q == primary.ChatID {
			t.Fatal("primary requirement was checked again after being confirmed")
		}
	}
}

func TestAdditionalEvaluatedAsSet(t *testing.T) {
	members := newFakeMembers()
	members.join(extraA.ChatID, 3)
	g := New(&staticSource{req: &domain.GateRequirement{Additional: []domain.ChannelRequirement{extraA, extraB, {ChatID: -203, Name: "C"}}}}, members, nil)
	s := NewSession(3, "tok")

	out, err := g.Evaluate(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if out.Stage != StageAdditionalCheck || len(out.Unmet) != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Unmet[0].ChatID != extraB.ChatID || out.Unmet[1].ChatID != -203 {
		t.Fatalf("unmet not in configured order: %+v", out.Unmet)
	}
	if len(members.queries) != 3 {
		t.Fatalf("queries = %v, want all three checked", members.queries)
	}
}

func TestQueryErrorFailsClosed(t *testing.T) {
	members := newFakeMembers()
	members.join(primary.ChatID, 9)
	members.errs[primary.ChatID] = errors.New("chat not found")
	g := New(&staticSource{req: &domain.GateRequirement{Primary: &primary}}, members, nil)
	s := NewSession(9, "tok")

	out, err := g.Evaluate(context.Background(), s)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil (unmet)", err)
	}
	if out.Cleared() || out.Stage != StagePrimaryCheck {
		t.Fatalf("outcome = %+v, want primary unmet", out)
	}
}

func TestRestrictedAndKickedAreUnmet(t *testing.T) {
	for _, st := range []platform.MemberStatus{platform.StatusRestricted, platform.StatusKicked, platform.StatusLeft} {
		members := newFakeMembers()
		members.status[memberKey{primary.ChatID, 1}] = st
		g := New(&staticSource{req: &domain.GateRequirement{Primary: &primary}}, members, nil)
		out, _ := g.Evaluate(context.Background(), NewSession(1, "t"))
		if out.Cleared() {
			t.Fatalf("status %q should not clear the gate", st)
		}
	}
	for _, st := range []platform.MemberStatus{platform.StatusCreator, platform.StatusAdministrator, platform.StatusMember} {
		members := newFakeMembers()
		members.status[memberKey{primary.ChatID, 1}] = st
		g := New(&staticSource{req: &domain.GateRequirement{Primary: &primary}}, members, nil)
		out, _ := g.Evaluate(context.Background(), NewSession(1, "t"))
		if !out.Cleared() {
			t.Fatalf("status %q should clear the gate", st)
		}
	}
}

func TestRequirementLoadError(t *testing.T) {
	g := New(&staticSource{err: errors.New("db down")}, newFakeMembers(), nil)
	s := NewSession(1, "t")
	if _, err := g.Evaluate(context.Background(), s); err == nil {
		t.Fatal("expected error")
	}
	if s.Stage != StageStart {
		t.Fatalf("stage = %v, want unchanged", s.Stage)
	}
}

func TestPrompt(t *testing.T) {
	text, kb := Prompt(Outcome{Stage: StagePrimaryCheck, Unmet: []domain.ChannelRequirement{primary}})
	if !strings.Contains(text, "Access Denied") {
		t.Fatalf("text = %q", text)
	}
	if len(kb) != 2 || kb[0][0].URL != primary.JoinLink || kb[1][0].Data != CallbackVerify {
		t.Fatalf("keyboard = %+v", kb)
	}

	text, kb = Prompt(Outcome{Stage: StageAdditionalCheck, Unmet: []domain.ChannelRequirement{extraA, {ChatID: -5, Name: "<x>", JoinLink: "https://t.me/x"}}})
	if !strings.Contains(text, "&lt;x&gt;") || !strings.Contains(text, "• A") {
		t.Fatalf("text = %q", text)
	}
	if len(kb) != 3 || kb[2][0].Data != CallbackVerify {
		t.Fatalf("keyboard = %+v", kb)
	}
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	seed := `primary:
  chat_id: -1001
  name: Main
  join_link: https://t.me/main
additional:
  - chat_id: -1002
    name: Extra
    join_link: https://t.me/extra
`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}
	req, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if req.Primary == nil || req.Primary.ChatID != -1001 || len(req.Additional) != 1 || req.Additional[0].JoinLink != "https://t.me/extra" {
		t.Fatalf("LoadSeed() = %+v", req)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("additional:\n  - name: missing id\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSeed(bad); err == nil {
		t.Fatal("expected error for missing chat_id")
	}
}
