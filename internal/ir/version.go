package ir

// Version constants stamped on journal records.
const (
	// IRVersion is the fact/record schema version.
	IRVersion = "1"

	// EngineVersion is the rulefire version.
	EngineVersion = "0.1.0"
)
