package ir

// Version constants for the journal schema and the engine.
const (
	// JournalVersion is the journal record format version.
	JournalVersion = "1"

	// EngineVersion is the ignis engine version.
	EngineVersion = "0.1.0"
)
