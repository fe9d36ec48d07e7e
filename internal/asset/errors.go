package asset

import "errors"

// Failure classes shared by every pipeline stage. Stages wrap these with
// context; callers classify with errors.Is.
var (
	// ErrAuthorization marks a rejected role assumption or token exchange.
	ErrAuthorization = errors.New("authorization failure")
	// ErrTransport marks a network or store failure other than a missing object.
	ErrTransport = errors.New("transport failure")
	// ErrSchema marks a malformed request, raised before any network call.
	ErrSchema = errors.New("schema failure")
	// ErrPartialPipeline marks a provenance failure after the catalog already accepted the item.
	ErrPartialPipeline = errors.New("partial pipeline failure")
)
