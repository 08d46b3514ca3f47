package events

// Event names emitted by the core engine, per the external-interfaces
// contract in spec.md §6.
const (
	MemoryStored                 = "memoryStored"
	MemoryUpdated                = "memoryUpdated"
	MemoryRemoved                = "memoryRemoved"
	MemoriesExpired               = "memoriesExpired"
	MemoriesMerged                = "memoriesMerged"
	LowImportanceMemoriesRemoved = "lowImportanceMemoriesRemoved"
	CapacityWarning              = "capacityWarning"
	CacheHit                     = "cacheHit"
	CacheCleared                 = "cacheCleared"
	RuleExecuted                 = "ruleExecuted"
	ExecutionError               = "executionError"
	AnalysisCompleted            = "analysisCompleted"
	MemoriesPersisted            = "memoriesPersisted"
	MemoriesLoaded               = "memoriesLoaded"
)
