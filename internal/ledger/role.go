package ledger

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/slug"
)

// RoleKind enumerates the semantic purpose of an account.
type RoleKind string

const (
	// RoleMain is the user's spendable account for a currency.
	RoleMain RoleKind = "main"
	// RoleIncome is the counter-account that funds income transactions.
	RoleIncome RoleKind = "income"
	// RoleCategory is the counter-account that receives spending for one category.
	RoleCategory RoleKind = "category"
)

// Role is the tagged account role. Only category roles carry a label.
type Role struct {
	Kind  RoleKind
	Label string
}

// MainRole returns the role of a user's main account.
func MainRole() Role { return Role{Kind: RoleMain} }

// IncomeRole returns the role of a user's income counter-account.
func IncomeRole() Role { return Role{Kind: RoleIncome} }

// CategoryRole returns the role of a spending counter-account. The label
// is expected to be normalized already (see NormalizeCategory).
func CategoryRole(label string) Role { return Role{Kind: RoleCategory, Label: label} }

// String renders the role for logs and API payloads: main, income, category:<label>.
func (r Role) String() string {
	if r.Kind == RoleCategory {
		return string(RoleCategory) + ":" + r.Label
	}
	return string(r.Kind)
}

// Name returns the canonical storage name for the role of the given user:
// user_<id>, user_<id>_income or user_<id>_<key>, where key is slug.Key(label).
func (r Role) Name(userID uuid.UUID) string {
	base := "user_" + userID.String()
	switch r.Kind {
	case RoleIncome:
		return base + "_" + string(RoleIncome)
	case RoleCategory:
		return base + "_" + slug.Key(r.Label)
	default:
		return base
	}
}

// ParseRole decodes a canonical account name back into a role.
// The name must belong to userID.
func ParseRole(userID uuid.UUID, name string) (Role, error) {
	base := "user_" + userID.String()
	rest, ok := strings.CutPrefix(name, base)
	if !ok {
		return Role{}, errs.Invalid("account name " + name + " does not belong to user")
	}
	switch {
	case rest == "":
		return MainRole(), nil
	case rest == "_"+string(RoleIncome):
		return IncomeRole(), nil
	case strings.HasPrefix(rest, "_"):
		if label, err := slug.ParseKey(rest[1:]); err == nil && !isReserved(label) {
			return CategoryRole(label), nil
		}
	}
	return Role{}, errs.Invalid("malformed account name " + name)
}

// NormalizeCategory trims a user supplied category label. The label itself is
// kept; only blank labels, invalid UTF-8 and the reserved income label are rejected.
func NormalizeCategory(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", errs.Invalid("category is required")
	}
	if !utf8.ValidString(label) {
		return "", errs.Invalid("category must be valid UTF-8")
	}
	if isReserved(label) {
		return "", errs.Invalid("category income is reserved")
	}
	return label, nil
}

func isReserved(label string) bool { return strings.EqualFold(label, string(RoleIncome)) }
