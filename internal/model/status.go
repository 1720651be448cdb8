package model

// RecordStatus replaces hard deletes: rows are never removed, only moved to
// StatusDeleted and filtered out of active queries.
type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusInactive RecordStatus = "inactive"
	StatusDeleted  RecordStatus = "deleted"
)

func (s RecordStatus) IsDeleted() bool {
	return s == StatusDeleted
}
