package app

// BatchOperation tracks a CLI run that may mutate the database.
// Runs are created in memory with ID=0. Only DB-mutating commands persist
// them (giving them an auto-increment ID from the batch_run table).
type BatchOperation struct {
	ID        int64
	Operation string
	Status    string // "success" or "error"
}

// NewBatchOperation creates a new in-memory batch operation.
func NewBatchOperation(operation string) *BatchOperation {
	return &BatchOperation{
		Operation: operation,
		Status:    "success",
	}
}

// Persisted returns true if this run has been saved to the database.
func (op *BatchOperation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the run as failed; the status lands in the run history row.
func (op *BatchOperation) Fail() {
	op.Status = "error"
}
