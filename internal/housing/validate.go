package housing

import "errors"

var (
	// ErrReadOnlyRole indicates that the acting user holds a read-only
	// capability and may not mutate housing.
	ErrReadOnlyRole = errors.New("housing: role cannot mutate housing")
	// ErrStatusRegression indicates an attempt to reset a contacted record
	// back to the never-contacted status.
	ErrStatusRegression = errors.New("housing: contact history cannot be erased")
)

// validateMutation checks the proposed changes against role permissions and
// the status-transition rules. The rule set is fixed and small; this is a
// rule table, not a pluggable engine. Pure function of (current state,
// proposed state, role); returns nil when the mutation is allowed.
func validateMutation(actor Actor, current HousingRecord, payload MutationPayload) error {
	if actor.Role == RoleVisitor {
		return ErrReadOnlyRole
	}

	// The one structurally forbidden backward transition: once a record has
	// left never-contacted, nothing may move it back.
	if payload.Status != nil &&
		*payload.Status == StatusNeverContacted &&
		current.Status != StatusNeverContacted {
		return ErrStatusRegression
	}

	return nil
}
