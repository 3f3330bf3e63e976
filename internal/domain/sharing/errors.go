package sharing

import "github.com/zyncure/zyncure/internal/platform/apperr"

var (
	ErrConnectionNotFound = apperr.NotFound("connection_not_found", "connection not found")
	ErrGrantNotFound      = apperr.NotFound("grant_not_found", "share grant not found")
	ErrResourceNotFound   = apperr.NotFound("resource_not_found", "file or folder not found")

	ErrDuplicateRequest = apperr.Conflict("duplicate_request", "a pending or accepted connection already exists")
	ErrNotPending       = apperr.InvalidTransition("not_pending", "connection request was already answered")

	ErrNotTarget    = apperr.Forbidden("not_target", "only the recipient can answer a connection request")
	ErrNotParty     = apperr.Forbidden("not_party", "not a party of this connection")
	ErrNotOwner     = apperr.Forbidden("not_owner", "only the owner can change this grant")
	ErrNotConnected = apperr.Forbidden("not_connected", "an accepted connection is required to share")
)

var ErrNotAccepted = apperr.InvalidTransition("not_accepted", "connection is not accepted")
