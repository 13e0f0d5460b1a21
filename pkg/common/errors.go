package common

import "errors"

var (
	// ErrConfiguration means a required credential or setting is missing.
	// Requests hitting it are aborted.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation means the caller supplied a malformed request.
	ErrValidation = errors.New("validation error")
	// ErrCollaborator means an external call failed or returned unusable data.
	ErrCollaborator = errors.New("collaborator failure")
	// ErrNotFound means the requested job or node does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotExpandable is returned when expansion is requested for a node
	// type that has no expansion path.
	ErrNotExpandable = errors.New("node type cannot be expanded")
)
