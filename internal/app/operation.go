package app

// Sync operation statuses recorded in history.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// SyncOperation tracks a CLI operation that may mutate metadata or ignore
// entries. Operations are created in memory with ID=0. Only mutating
// commands persist them (giving them an auto-increment ID from the database).
type SyncOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewSyncOperation creates a new in-memory sync operation.
func NewSyncOperation(operation, parameters string) *SyncOperation {
	return &SyncOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *SyncOperation) Persisted() bool {
	return op.ID != 0
}

// Record folds an outcome into the operation status. An error always wins;
// failed items downgrade success to partial.
func (op *SyncOperation) Record(failed int, err error) {
	switch {
	case err != nil:
		op.Status = StatusError
	case failed > 0 && op.Status == StatusSuccess:
		op.Status = StatusPartial
	}
}
