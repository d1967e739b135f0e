// Package gate decides whether a user may receive content, based on the
// administrator-configured subscription requirements.
//
// Evaluation is poll-on-demand: membership is queried only when a token is
// presented or the user taps the verify button. A query that fails counts as
// "not a member".
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
)

// Stage is a step of the gate state machine.
type Stage int

const (
	StageStart Stage = iota
	StagePrimaryCheck
	StageAdditionalCheck
	StageCleared
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StagePrimaryCheck:
		return "primary_check"
	case StageAdditionalCheck:
		return "additional_check"
	case StageCleared:
		return "cleared"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Session is the gate progress of one presented token. It lives in the
// conversation state and is never persisted.
type Session struct {
	UserID int64
	Token  string
	Stage  Stage
}

// NewSession starts a flow for token.
func NewSession(userID int64, token string) *Session {
	return &Session{UserID: userID, Token: token, Stage: StageStart}
}

// Outcome is the result of one evaluation. Unmet lists the requirements the
// user still has to satisfy at Stage; it is empty once cleared.
type Outcome struct {
	Stage Stage
	Unmet []domain.ChannelRequirement
}

// Cleared reports whether delivery may proceed.
func (o Outcome) Cleared() bool { return o.Stage == StageCleared }

// RequirementSource provides the current requirement snapshot.
type RequirementSource interface {
	GetGateRequirement(ctx context.Context) (*domain.GateRequirement, error)
}

// MembershipChecker queries a user's membership in a chat.
type MembershipChecker interface {
	ChatMember(ctx context.Context, chatID, userID int64) (platform.MemberStatus, error)
}

// Gate evaluates sessions.
type Gate struct {
	src     RequirementSource
	members MembershipChecker
	logger  *slog.Logger
}

// New returns a Gate.
func New(src RequirementSource, members MembershipChecker, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{src: src, members: members, logger: logger}
}

// Evaluate advances s as far as the user's memberships allow. A primary
// requirement confirmed earlier in the same flow is not checked again.
// An error is returned only when the requirement snapshot cannot be read;
// s is left unchanged in that case.
func (g *Gate) Evaluate(ctx context.Context, s *Session) (Outcome, error) {
	req, err := g.src.GetGateRequirement(ctx)
	if err != nil {
		return Outcome{Stage: s.Stage}, fmt.Errorf("load gate requirements: %w", err)
	}
	if req == nil {
		req = &domain.GateRequirement{}
	}

	for {
		switch s.Stage {
		case StageStart:
			if req.Primary != nil {
				s.Stage = StagePrimaryCheck
			} else {
				s.Stage = StageAdditionalCheck
			}

		case StagePrimaryCheck:
			if req.Primary != nil && !g.isMember(ctx, *req.Primary, s.UserID) {
				return Outcome{Stage: StagePrimaryCheck, Unmet: []domain.ChannelRequirement{*req.Primary}}, nil
			}
			s.Stage = StageAdditionalCheck

		case StageAdditionalCheck:
			var unmet []domain.ChannelRequirement
			for _, r := range req.Additional {
				if !g.isMember(ctx, r, s.UserID) {
					unmet = append(unmet, r)
				}
			}
			if len(unmet) > 0 {
				return Outcome{Stage: StageAdditionalCheck, Unmet: unmet}, nil
			}
			s.Stage = StageCleared

		case StageCleared:
			return Outcome{Stage: StageCleared}, nil

		default:
			return Outcome{Stage: s.Stage}, fmt.Errorf("unknown gate stage %v", s.Stage)
		}
	}
}

func (g *Gate) isMember(ctx context.Context, r domain.ChannelRequirement, userID int64) bool {
	status, err := g.members.ChatMember(ctx, r.ChatID, userID)
	if err != nil {
		g.logger.Debug("Membership query failed, treating as unmet",
			"chat_id", r.ChatID, "user_id", userID, "error", err)
		return false
	}
	return status.IsMember()
}
