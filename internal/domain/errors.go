package domain

import "errors"

var (
	// ErrNotFound signals that a row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("domain: not found")
	// ErrForbidden signals that the caller lacks the role required for an action.
	ErrForbidden = errors.New("domain: forbidden")
	// ErrConflict signals a unique constraint clash.
	ErrConflict = errors.New("domain: conflict")
	// ErrInvalidValue signals a supplied value Postgres cannot convert to the column type.
	ErrInvalidValue = errors.New("domain: invalid value")
	// ErrUnknownTable is returned for tables outside the CRUD allow-list.
	ErrUnknownTable = errors.New("domain: unknown table")
	// ErrUnknownColumn is returned for columns outside a table's allow-list.
	ErrUnknownColumn = errors.New("domain: unknown column")
	// ErrReadOnly is returned when writing to a read-only table.
	ErrReadOnly = errors.New("domain: table is read-only")
	// ErrUnknownFunction is returned for RPC functions outside the allow-list.
	ErrUnknownFunction = errors.New("domain: unknown function")
)
