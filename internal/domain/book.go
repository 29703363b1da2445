package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookState string

const (
	StateDraft            BookState = "draft"
	StateAwaitingApproval BookState = "awaiting_approval"
	StateApproved         BookState = "approved"
	StateRejected         BookState = "rejected"
	StateHidden           BookState = "hidden"
	StateDeactivated      BookState = "deactivated"
)

func (s BookState) Valid() bool {
	switch s {
	case StateDraft, StateAwaitingApproval, StateApproved, StateRejected, StateHidden, StateDeactivated:
		return true
	}
	return false
}

// BookStates lists every lifecycle state in table order.
func BookStates() []BookState {
	return []BookState{
		StateDraft, StateAwaitingApproval, StateApproved,
		StateRejected, StateHidden, StateDeactivated,
	}
}

type Role string

const (
	RoleOwner     Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

type Action string

const (
	ActionAwait      Action = "await"
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionHide       Action = "hide"
	ActionDeactivate Action = "deactivate"
	ActionReactivate Action = "reactivate"
)

// EventKind doubles as the MQ routing key for the emitted domain event.
type EventKind string

const (
	EventBookDeactivated EventKind = "book.deactivated"
	EventBookReactivated EventKind = "book.reactivated"
	EventBookDiscounted  EventKind = "book.discounted"
)

type Book struct {
	ID          string
	OwnerID     string
	Title       string
	Author      string
	Description string
	Price       decimal.Decimal

	DiscountPercentage *int
	DiscountStart      *time.Time
	DiscountEnd        *time.Time

	State BookState
	// PriorState is the state held just before an admin deactivation,
	// restored on reactivate. Empty unless State == deactivated.
	PriorState      BookState
	DeletionReason  *string
	RejectionReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewDraft(ownerID, title, author, description string, price decimal.Decimal, now time.Time) (*Book, error) {
	ownerID = strings.TrimSpace(ownerID)
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	description = strings.TrimSpace(description)

	if ownerID == "" {
		return nil, ErrValidation("owner_id is required")
	}
	if title == "" || len(title) > 200 {
		return nil, ErrValidation("title is required and must be <= 200 chars")
	}
	if author == "" || len(author) > 120 {
		return nil, ErrValidation("author is required and must be <= 120 chars")
	}
	if len(description) > 4000 {
		return nil, ErrValidation("description must be <= 4000 chars")
	}
	if price.IsNegative() {
		return nil, ErrValidation("price must be >= 0")
	}

	return &Book{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Author:      author,
		Description: description,
		Price:       price,
		State:       StateDraft,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// transition is one row of the lifecycle table. Apply and AllowedActions both
// read this table so the "allowed actions" listing can never diverge from what
// Apply actually enforces.
type transition struct {
	Action       Action
	Role         Role
	From         []BookState
	To           BookState
	NeedsReason  bool
	RestorePrior bool // To is ignored; the state saved at deactivation wins
	Emits        EventKind
}

var transitionTable = []transition{
	// await from awaiting_approval is a deliberate no-op row: a retried
	// submit succeeds instead of erroring.
	{Action: ActionAwait, Role: RoleOwner,
		From: []BookState{StateDraft, StateHidden, StateAwaitingApproval}, To: StateAwaitingApproval},
	{Action: ActionApprove, Role: RoleModerator,
		From: []BookState{StateAwaitingApproval}, To: StateApproved},
	{Action: ActionReject, Role: RoleModerator,
		From: []BookState{StateAwaitingApproval}, To: StateRejected, NeedsReason: true},
	{Action: ActionHide, Role: RoleOwner,
		From: []BookState{StateApproved, StateRejected}, To: StateHidden},
	{Action: ActionDeactivate, Role: RoleAdmin,
		From: []BookState{StateDraft, StateAwaitingApproval, StateApproved, StateRejected, StateHidden},
		To:   StateDeactivated, Emits: EventBookDeactivated},
	{Action: ActionReactivate, Role: RoleAdmin,
		From: []BookState{StateDeactivated}, RestorePrior: true, Emits: EventBookReactivated},
}

// roleAllows reports whether actor satisfies the required privilege class.
// Admin covers moderator rows; owner rows require the owner role itself,
// with the identity check left to the caller.
func roleAllows(required, actor Role) bool {
	switch required {
	case RoleOwner:
		return actor == RoleOwner
	case RoleModerator:
		return actor == RoleModerator || actor == RoleAdmin
	case RoleAdmin:
		return actor == RoleAdmin
	}
	return false
}

// RequiredRole returns the privilege class gating an action.
func RequiredRole(action Action) (Role, bool) {
	for _, t := range transitionTable {
		if t.Action == action {
			return t.Role, true
		}
	}
	return "", false
}

func containsState(ss []BookState, s BookState) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// TransitionResult reports what Apply did. Changed is false for legal no-op
// rows (await while already awaiting). Emits names the domain event to
// publish, if any.
type TransitionResult struct {
	Changed bool
	Emits   EventKind
}

// Apply validates and performs one lifecycle transition, mutating the book.
// Legality is checked against the current state first (invalid_state), then
// the actor's role class (forbidden). Ownership of owner-scoped actions is a
// caller precondition.
func (b *Book) Apply(action Action, actor Role, reason string, now time.Time) (TransitionResult, error) {
	var rule *transition
	for i := range transitionTable {
		t := &transitionTable[i]
		if t.Action == action && containsState(t.From, b.State) {
			rule = t
			break
		}
	}
	if rule == nil {
		return TransitionResult{}, ErrInvalidState("action " + string(action) + " is not allowed from state " + string(b.State))
	}
	if !roleAllows(rule.Role, actor) {
		return TransitionResult{}, ErrForbidden("role " + string(actor) + " may not " + string(action))
	}

	reason = strings.TrimSpace(reason)
	if rule.NeedsReason && reason == "" {
		return TransitionResult{}, ErrValidation("reason is required")
	}

	to := rule.To
	if rule.RestorePrior {
		to = b.PriorState
		if !to.Valid() || to == StateDeactivated {
			to = StateHidden // defensive default for legacy rows without a prior state
		}
	}

	if b.State == to {
		return TransitionResult{Changed: false}, nil
	}

	t := now.UTC()
	switch action {
	case ActionReject:
		b.RejectionReason = &reason
	case ActionDeactivate:
		b.PriorState = b.State
		if reason != "" {
			b.DeletionReason = &reason
		} else {
			b.DeletionReason = nil
		}
	case ActionReactivate:
		b.PriorState = ""
		b.DeletionReason = nil
	}
	b.State = to
	b.UpdatedAt = t

	return TransitionResult{Changed: true, Emits: rule.Emits}, nil
}

// AllowedActions lists the actions reachable from the book's current state
// for the given role, in table order.
func (b *Book) AllowedActions(role Role) []Action {
	out := make([]Action, 0, 4)
	seen := map[Action]bool{}
	for _, t := range transitionTable {
		if seen[t.Action] {
			continue
		}
		if containsState(t.From, b.State) && roleAllows(t.Role, role) {
			out = append(out, t.Action)
			seen[t.Action] = true
		}
	}
	return out
}

// SetDiscount mutates the discount attributes. This is not a lifecycle
// transition: it is legal in every state except deactivated, and the caller
// must have verified ownership.
func (b *Book) SetDiscount(pct int, start, end time.Time, now time.Time) error {
	if b.State == StateDeactivated {
		return ErrInvalidState("deactivated book cannot be discounted")
	}
	s, e := start.UTC(), end.UTC()
	if err := ValidateDiscount(&pct, &s, &e); err != nil {
		return err
	}
	b.DiscountPercentage = &pct
	b.DiscountStart = &s
	b.DiscountEnd = &e
	b.UpdatedAt = now.UTC()
	return nil
}

// EffectivePrice is the price of this book at the given instant.
func (b *Book) EffectivePrice(now time.Time) (decimal.Decimal, error) {
	return EffectivePrice(b.Price, b.DiscountPercentage, b.DiscountStart, b.DiscountEnd, now)
}
