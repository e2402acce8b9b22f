package storage

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "record not found"
	}

	return "record not found: " + e.ID
}

// ConflictError is returned when an insert collides with an existing id or
// a transaction loses a serialization race.
type ConflictError struct {
	ID string
}

func (e ConflictError) Error() string {
	if e.ID == "" {
		return "record conflict"
	}

	return "record conflict: " + e.ID
}
