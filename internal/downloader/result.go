package downloader

// FileError is the failure of one file.
type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

// BatchResult tallies the outcome of Download. Names appear in completion
// order, except Skipped and Previewed which keep the input order.
type BatchResult struct {
	Completed []string
	Failed    []FileError

	// Existing were downloaded by an earlier run and left untouched.
	Existing []string

	// Skipped were never started because the batch was cancelled.
	Skipped []string

	Previewed []string

	// Cancelled lists the upstream requests cancelled during the batch.
	Cancelled []string
}

func (r *BatchResult) HasFailures() bool {
	return len(r.Failed) > 0
}
