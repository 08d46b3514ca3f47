package engine

import "time"

// MemoryConfig mirrors spec.md §6's memory.* configuration keys.
type MemoryConfig struct {
	MaxSize           int
	RetentionDays     int
	EnableAutoCleanup bool
	CleanupInterval   time.Duration
}

// PersistenceConfig mirrors spec.md §6's memory.persistence.* keys.
type PersistenceConfig struct {
	Enabled          bool
	Dir              string
	FileName         string
	AutoSave         bool
	AutoSaveInterval time.Duration
	SaveOnDestroy    bool
}

// RetrievalConfig mirrors spec.md §6's retrieval.* keys.
type RetrievalConfig struct {
	CacheTTL     time.Duration
	DefaultLimit int
}

// FeatureFlags mirrors spec.md §6's features.* keys.
type FeatureFlags struct {
	KnowledgeGraph bool
}

// RulesConfig mirrors spec.md §6's rules.* keys.
type RulesConfig struct {
	PersonalRulesPath string
	ProjectRulesPath  string
}

// PerformanceConfig mirrors spec.md §6's performance.* keys.
type PerformanceConfig struct {
	EnableMonitoring bool
	MetricsInterval  time.Duration
}

// Config is the SystemFacade's full configuration, aggregating every key
// family in spec.md §6.
type Config struct {
	Memory      MemoryConfig
	Persistence PersistenceConfig
	Retrieval   RetrievalConfig
	Features    FeatureFlags
	Rules       RulesConfig
	Performance PerformanceConfig
}

// DefaultConfig returns the defaults named across spec.md §4/§6.
func DefaultConfig() Config {
	return Config{
		Memory: MemoryConfig{
			MaxSize:           10000,
			RetentionDays:     30,
			EnableAutoCleanup: true,
			CleanupInterval:   time.Hour,
		},
		Persistence: PersistenceConfig{
			Enabled:          false,
			Dir:              "data",
			FileName:         "memories.json",
			AutoSave:         true,
			AutoSaveInterval: 5 * time.Second,
			SaveOnDestroy:    true,
		},
		Retrieval: RetrievalConfig{
			CacheTTL:     60 * time.Second,
			DefaultLimit: 10,
		},
		Features: FeatureFlags{
			KnowledgeGraph: true,
		},
		Performance: PerformanceConfig{
			EnableMonitoring: false,
			MetricsInterval:  time.Minute,
		},
	}
}

// ConfigPatch is a sparse overlay applied by UpdateConfiguration: nil
// pointers/zero-value sub-structs leave the corresponding field
// untouched, matching spec.md §4.7's "shallow-merges into current
// configuration".
type ConfigPatch struct {
	Memory      *MemoryConfig
	Persistence *PersistenceConfig
	Retrieval   *RetrievalConfig
	Features    *FeatureFlags
	Rules       *RulesConfig
	Performance *PerformanceConfig
}

// apply shallow-merges patch into cfg, replacing whole sub-structs that
// are present in the patch.
func (cfg Config) apply(patch ConfigPatch) Config {
	if patch.Memory != nil {
		cfg.Memory = *patch.Memory
	}
	if patch.Persistence != nil {
		cfg.Persistence = *patch.Persistence
	}
	if patch.Retrieval != nil {
		cfg.Retrieval = *patch.Retrieval
	}
	if patch.Features != nil {
		cfg.Features = *patch.Features
	}
	if patch.Rules != nil {
		cfg.Rules = *patch.Rules
	}
	if patch.Performance != nil {
		cfg.Performance = *patch.Performance
	}
	return cfg
}
