package research

import "errors"

// Failure classes reported in Outcome.Err. Callers match them with errors.Is;
// the underlying cause is wrapped alongside.
var (
	// ErrCollaboratorUnavailable means a search or model backend is not configured.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrCollaboratorFault means a collaborator call failed or misbehaved.
	ErrCollaboratorFault = errors.New("collaborator fault")
	// ErrEmptyResultSet means search produced nothing to analyse.
	ErrEmptyResultSet = errors.New("no search results")
	// ErrClientDisconnect means the consumer went away mid-run.
	ErrClientDisconnect = errors.New("client disconnected")
)
