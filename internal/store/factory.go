package store

// Stores provides access to every entity store from a single DB handle.
//
// Usage:
//
//	stores := store.NewStores(db)
//	job, err := stores.Jobs().Get(ctx, 123)
type Stores struct {
	db *DB
}

func NewStores(db *DB) *Stores {
	return &Stores{db: db}
}

func (s *Stores) Jobs() JobStore {
	return newJobStore(s.db)
}

func (s *Stores) JobSteps() JobStepStore {
	return newJobStepStore(s.db)
}

func (s *Stores) CostEntries() CostEntryStore {
	return newCostEntryStore(s.db)
}

func (s *Stores) MemoryNotes() MemoryNoteStore {
	return newMemoryNoteStore(s.db)
}

func (s *Stores) MemoryFiles() MemoryFileStore {
	return newMemoryFileStore(s.db)
}

func (s *Stores) MessageSummaries() MessageSummaryStore {
	return newMessageSummaryStore(s.db)
}

func (s *Stores) ContextDiagnostics() ContextDiagnosticStore {
	return newContextDiagnosticStore(s.db)
}

func (s *Stores) Embeddings() EmbeddingStore {
	return newEmbeddingStore(s.db)
}
