package errors

// WrapOpComponent wraps err with operation and component context,
// passing nil through. Used where several collaborators are handled in
// a row and per-call constructors would repeat.
func WrapOpComponent(err error, op Operation, component string) error {
	if err == nil {
		return nil
	}
	return NewWithComponent(op, component, err)
}
