package actions

import "context"

// Repository defines the data access contract for the audit log. There is
// no update or delete.
type Repository interface {
	// Append inserts rec and returns its assigned id. Implementations rely on
	// the storage engine to serialize concurrent appends.
	Append(ctx context.Context, rec *Record) (int64, error)

	// List returns records matching the filter ordered by id descending.
	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

// ListFilter controls filtering and pagination for audit queries. Empty
// Email or Result means no filter on that column.
type ListFilter struct {
	Email  string
	Result Result
	Limit  int
	Offset int
}
