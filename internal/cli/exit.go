package cli

// ExitCodeError carries a specific process exit code through the cobra
// error path. Used by plan to signal pending changes with exit code 2.
type ExitCodeError struct {
	Code int
	Msg  string
}

func (e *ExitCodeError) Error() string {
	return e.Msg
}
