package services

import (
	"strconv"
	"strings"

	apperrors "github.com/charlesng35/csahub/pkg/errors"
)

// MemberCommand is an admin action on one member. The set of commands is
// closed: VerifyMember, BlockMember, UnblockMember and DeleteMember.
type MemberCommand interface {
	MemberID() uint
	Action() string
	isMemberCommand()
}

// VerifyMember marks a member verified and clears any pending token.
type VerifyMember struct{ ID uint }

// BlockMember prevents the email from registering again.
type BlockMember struct{ ID uint }

// UnblockMember restores a blocked member as verified.
type UnblockMember struct{ ID uint }

// DeleteMember removes the member row.
type DeleteMember struct{ ID uint }

func (c VerifyMember) MemberID() uint  { return c.ID }
func (c BlockMember) MemberID() uint   { return c.ID }
func (c UnblockMember) MemberID() uint { return c.ID }
func (c DeleteMember) MemberID() uint  { return c.ID }

func (VerifyMember) Action() string  { return "verify" }
func (BlockMember) Action() string   { return "block" }
func (UnblockMember) Action() string { return "unblock" }
func (DeleteMember) Action() string  { return "delete" }

func (VerifyMember) isMemberCommand()  {}
func (BlockMember) isMemberCommand()   {}
func (UnblockMember) isMemberCommand() {}
func (DeleteMember) isMemberCommand()  {}

// ParseMemberCommand turns form input into a command. The id is checked
// before the action, and before anything touches the database.
func ParseMemberCommand(action, rawID string) (MemberCommand, error) {
	id, ok := parseID(rawID)
	if !ok {
		return nil, apperrors.NewValidation("Invalid member ID")
	}
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "verify":
		return VerifyMember{ID: id}, nil
	case "block":
		return BlockMember{ID: id}, nil
	case "unblock":
		return UnblockMember{ID: id}, nil
	case "delete":
		return DeleteMember{ID: id}, nil
	default:
		return nil, apperrors.NewValidation("Invalid action")
	}
}

// parseID accepts positive decimal ids only.
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
