package service

// Authorize is the single ownership predicate used for every record type:
// the caller identity must equal the identity that owns the resource.
// Callers resolve NotFound before asking, so a missing record never turns
// into Forbidden.
func Authorize(callerID, ownerID string) error {
	if callerID == "" || callerID != ownerID {
		return ErrForbidden
	}
	return nil
}
