package browse

// DeleteDecision is the navigation outcome of a successful delete
type DeleteDecision struct {
	// NextCursor is the cursor the intent should move to. It equals the
	// current cursor unless StepBack is set.
	NextCursor string
	// StepBack is set when the deleted record was the last one on its page
	// and a previous page exists.
	StepBack bool
	// Refresh requests a refetch of the current intent
	Refresh bool
}

// AfterDelete decides how to recover after deleting one record from page.
// A page holding exactly one record becomes empty, so the view steps back to
// prevCursor when there is one; stepping back fetches on its own, so no
// refresh is requested. The decision uses the pre-delete count and does not
// re-check the server.
func AfterDelete(page Page, currentCursor, prevCursor string) DeleteDecision {
	if len(page.Records) == 1 && prevCursor != "" {
		return DeleteDecision{NextCursor: prevCursor, StepBack: true}
	}
	return DeleteDecision{NextCursor: currentCursor, Refresh: true}
}

// AfterCreate returns the intent to show after a create: the first page
// without filters, where the new record is listed first.
func AfterCreate() Intent {
	return HomeIntent
}

// AfterUpdate reports whether the list must be refetched after an update.
// The intent never changes.
func AfterUpdate() (refresh bool) {
	return true
}
