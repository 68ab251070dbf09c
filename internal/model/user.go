package model

import (
	"log/slog"
	"time"
)

// User is an orchestrator-local identity bound to an upstream identity
// provider's external id.
type User struct {
	UserID           string
	ExternalID       string
	IdentityProvider string
	Email            string
	DisplayName      string
	Active           bool
}

// ApprovalMode is the closed set of default_approval_mode values.
type ApprovalMode string

const (
	ApprovalModePrompt ApprovalMode = "prompt"
	ApprovalModeAllow  ApprovalMode = "allow"
	ApprovalModeDeny   ApprovalMode = "deny"
)

// UserPreferences are lazily materialised with these defaults on first
// access.
type UserPreferences struct {
	UserID                    string
	DefaultApprovalMode       ApprovalMode
	TrustedServices           map[string]struct{}
	BlockedServices           map[string]struct{}
	ElicitationTimeoutSeconds int
	RememberDecisions         bool
	NotifyOnElicitation       bool
	NotifyOnPermissionChange  bool
}

// DefaultElicitationTimeoutSeconds is the fallback elicitation deadline used
// whenever a caller doesn't supply a user-specific timeout.
const DefaultElicitationTimeoutSeconds = 300

// DefaultPreferences returns the zero-value preference set used for
// anonymous users and for first materialisation.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:                    userID,
		DefaultApprovalMode:       ApprovalModePrompt,
		TrustedServices:           map[string]struct{}{},
		BlockedServices:           map[string]struct{}{},
		ElicitationTimeoutSeconds: DefaultElicitationTimeoutSeconds,
		RememberDecisions:         true,
	}
}

// PermissionStatus is the closed set of permission states.
type PermissionStatus string

const (
	PermissionGranted  PermissionStatus = "Granted"
	PermissionDenied   PermissionStatus = "Denied"
	PermissionRequired PermissionStatus = "Required"
	PermissionExpired  PermissionStatus = "Expired"
)

// PermissionScope distinguishes single-use from standing grants.
type PermissionScope string

const (
	ScopeOneShot    PermissionScope = "OneShot"
	ScopePersistent PermissionScope = "Persistent"
)

// Permission records a user's standing decision about a service (and
// optionally a specific tool within it). One-shot permissions are consumed
// on first Granted use.
type Permission struct {
	PermissionID string
	UserID       string
	ServiceName  string
	ToolName     string // empty means "applies to the whole service"
	Status       PermissionStatus
	Scope        PermissionScope
	Expiry       *time.Time
}

// ElicitationKind is the closed set of elicitation flow kinds.
type ElicitationKind string

const (
	ElicitationForm     ElicitationKind = "Form"
	ElicitationURL      ElicitationKind = "Url"
	ElicitationApproval ElicitationKind = "Approval"
)

// ElicitationStatus is the closed set of elicitation states.
type ElicitationStatus string

const (
	ElicitationPending   ElicitationStatus = "Pending"
	ElicitationCompleted ElicitationStatus = "Completed"
	ElicitationDeclined  ElicitationStatus = "Declined"
	ElicitationCanceled  ElicitationStatus = "Canceled"
	ElicitationExpired   ElicitationStatus = "Expired"
)

// ApprovalDecision is the closed set of Approval flow responses.
type ApprovalDecision string

const (
	DecisionAllowOnce    ApprovalDecision = "allow_once"
	DecisionAlwaysAllow  ApprovalDecision = "always_allow"
	DecisionDeny         ApprovalDecision = "deny"
)

// Elicitation is a pending (or resolved) rendezvous awaiting a user
// response. Exactly one of Schema (Form) or Provider/State (Url) is
// populated, selected by Kind.
type Elicitation struct {
	ElicitationID string
	UserID        string
	ServiceName   string
	ToolName      string
	Kind          ElicitationKind
	Status        ElicitationStatus
	Deadline      time.Time

	// Form
	Schema    *TypedSchema   // normalized, for display/reasoning
	RawSchema map[string]any // original JSON-Schema fragment, compiled by jsonschema/v6 at validation time

	// Url
	Provider string
	State    string
}

// ApiKey is a generated credential. Display format
// "uo_{prefix:8}_{secret:32}"; only Prefix and KeyHash are ever persisted.
type ApiKey struct {
	Prefix    string
	KeyHash   string
	UserID    string
	Name      string
	Active    bool
	Expiry    *time.Time
	Scopes    []string
	CreatedAt time.Time
	LastUsedAt *time.Time
}

func (k ApiKey) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("prefix", k.Prefix),
		slog.String("name", k.Name),
		slog.Bool("active", k.Active),
	)
}

// AuditAction is the closed vocabulary of audit entry kinds.
type AuditAction string

const (
	ActionLogin                 AuditAction = "Login"
	ActionToolExecuted           AuditAction = "ToolExecuted"
	ActionPermissionGranted      AuditAction = "PermissionGranted"
	ActionPermissionDenied       AuditAction = "PermissionDenied"
	ActionPermissionRevoked      AuditAction = "PermissionRevoked"
	ActionElicitationRequested   AuditAction = "ElicitationRequested"
	ActionElicitationCompleted   AuditAction = "ElicitationCompleted"
	ActionOAuthStarted           AuditAction = "OAuthStarted"
	ActionOAuthCompleted         AuditAction = "OAuthCompleted"
	ActionPreferencesUpdated     AuditAction = "PreferencesUpdated"
)

// AuditEntry is one append-only audit trail row.
type AuditEntry struct {
	EntryID   string
	UserID    string // empty for unauthenticated events
	Action    AuditAction
	Resource  string
	IP        string
	UserAgent string
	Timestamp time.Time
}
