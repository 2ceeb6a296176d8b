package metrics

import "github.com/prometheus/client_golang/prometheus"

// Key constants are exported primarily for documentation reasons. Typically,
// they will not be used programmatically outside of defining the collectors.

// Label values of status-partitioned collectors.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Keys for atlas projection metrics.
const (
	ProjectionsBuiltTotalKey             = "atlas_projections_built_total"
	ProjectionBytesTotalKey              = "atlas_projection_bytes_total"
	ConservationCorrectionsTotalKey      = "atlas_conservation_corrections_total"
	IncrementalDeltasTotalKey            = "atlas_incremental_deltas_total"
	ConservationDomainsLiveKey           = "atlas_conservation_domains_live"
	FourierNormalFormDroppedTotalKey     = "atlas_fourier_normal_form_dropped_coefficients_total"
	ProjectionVerificationsTotalKey      = "atlas_projection_verifications_total"
	ProjectionTransformsTotalKey         = "atlas_projection_transforms_total"
	IncrementalRollbacksTotalKey         = "atlas_incremental_rollbacks_total"
	FourierHarmonicTermsTotalKey         = "atlas_fourier_harmonic_terms_total"
	ConservationCorrectionUnitsTotalKey  = "atlas_conservation_correction_units_total"
	ProjectionWitnessGenerationsTotalKey = "atlas_projection_witness_generations_total"
)

// Collectors for atlas projection metrics.
var (
	ProjectionsBuiltTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ProjectionsBuiltTotalKey,
		Help: "Cumulative number of projections built, by projection type and status.",
	}, []string{"type", "status"})
	ProjectionBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ProjectionBytesTotalKey,
		Help: "Cumulative number of source bytes projected.",
	})
	ConservationCorrectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ConservationCorrectionsTotalKey,
		Help: "Cumulative number of tiles which required conservation correction.",
	})
	ConservationCorrectionUnitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ConservationCorrectionUnitsTotalKey,
		Help: "Cumulative sum of conservation deficits added by tile correction.",
	})
	IncrementalDeltasTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: IncrementalDeltasTotalKey,
		Help: "Cumulative number of incremental deltas applied, by kind and status.",
	}, []string{"kind", "status"})
	IncrementalRollbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: IncrementalRollbacksTotalKey,
		Help: "Cumulative number of incremental deltas rolled back.",
	})
	ConservationDomainsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ConservationDomainsLiveKey,
		Help: "Number of live reference conservation domains.",
	})
	FourierNormalFormDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: FourierNormalFormDroppedTotalKey,
		Help: "Cumulative number of harmonic coefficients dropped by normal-form quantization.",
	})
	FourierHarmonicTermsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: FourierHarmonicTermsTotalKey,
		Help: "Cumulative number of harmonic terms accumulated by R96 Fourier analysis.",
	})
	ProjectionVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ProjectionVerificationsTotalKey,
		Help: "Cumulative number of projection verifications, by status.",
	}, []string{"status"})
	ProjectionTransformsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ProjectionTransformsTotalKey,
		Help: "Cumulative number of transforms applied to projections.",
	})
	ProjectionWitnessGenerationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ProjectionWitnessGenerationsTotalKey,
		Help: "Cumulative number of projection witnesses generated.",
	})
)

// ProjectionCollectors returns projection metric collectors.
func ProjectionCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		ConservationCorrectionUnitsTotal,
		ConservationCorrectionsTotal,
		ConservationDomainsLive,
		FourierHarmonicTermsTotal,
		FourierNormalFormDroppedTotal,
		IncrementalDeltasTotal,
		IncrementalRollbacksTotal,
		ProjectionBytesTotal,
		ProjectionTransformsTotal,
		ProjectionVerificationsTotal,
		ProjectionWitnessGenerationsTotal,
		ProjectionsBuiltTotal,
	}
}

// Keys for atlas shard metrics.
const (
	ShardsExtractedTotalKey        = "atlas_shards_extracted_total"
	ShardBytesExtractedTotalKey    = "atlas_shard_bytes_extracted_total"
	ReconstructionsTotalKey        = "atlas_reconstructions_total"
	ShardStoreBytesWrittenTotalKey = "atlas_shard_store_written_bytes_total"
	ShardStoreBytesReadTotalKey    = "atlas_shard_store_read_bytes_total"
	ShardStoreCacheHitsTotalKey    = "atlas_shard_store_cache_hits_total"
	ShardExtractDurationSecondsKey = "atlas_shard_extract_duration_seconds"
)

// Collectors for atlas shard metrics.
var (
	ShardsExtractedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ShardsExtractedTotalKey,
		Help: "Cumulative number of shard extractions, by status.",
	}, []string{"status"})
	ShardBytesExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ShardBytesExtractedTotalKey,
		Help: "Cumulative number of bytes carved into extracted shards.",
	})
	ReconstructionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ReconstructionsTotalKey,
		Help: "Cumulative number of projection reconstructions from shards, by status.",
	}, []string{"status"})
	ShardStoreBytesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ShardStoreBytesWrittenTotalKey,
		Help: "Cumulative number of encoded (compressed) bytes written to shard stores.",
	})
	ShardStoreBytesReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ShardStoreBytesReadTotalKey,
		Help: "Cumulative number of encoded (compressed) bytes read from shard stores.",
	})
	ShardStoreCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ShardStoreCacheHitsTotalKey,
		Help: "Cumulative number of shard store reads served from cache.",
	})
	ShardExtractDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: ShardExtractDurationSecondsKey,
		Help: "Duration of individual shard extractions.",
	})
)

// ShardCollectors returns shard metric collectors.
func ShardCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		ReconstructionsTotal,
		ShardBytesExtractedTotal,
		ShardExtractDurationSeconds,
		ShardStoreBytesReadTotal,
		ShardStoreBytesWrittenTotal,
		ShardStoreCacheHitsTotal,
		ShardsExtractedTotal,
	}
}

// Keys for atlas invariant metrics.
const (
	InvariantViolationsTotalKey = "atlas_invariant_violations_total"
	EnforcerStateKey            = "atlas_enforcer_state"
	EnforcerTransitionsTotalKey = "atlas_enforcer_transitions_total"
	ValidationsTotalKey         = "atlas_invariant_validations_total"
	BudgetTransactionsTotalKey  = "atlas_budget_transactions_total"
)

// Collectors for atlas invariant metrics.
var (
	InvariantViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: InvariantViolationsTotalKey,
		Help: "Cumulative number of errors recorded by failure-closed enforcers, by error kind.",
	}, []string{"kind"})
	EnforcerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: EnforcerStateKey,
		Help: "System state of the most recently transitioned enforcer (0 Normal, 1 Warning, 2 Recovery, 3 Error, 4 Locked).",
	})
	EnforcerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: EnforcerTransitionsTotalKey,
		Help: "Cumulative number of enforcer state transitions, by target state.",
	}, []string{"state"})
	ValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ValidationsTotalKey,
		Help: "Cumulative number of full invariant validations, by status.",
	}, []string{"status"})
	BudgetTransactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: BudgetTransactionsTotalKey,
		Help: "Cumulative number of conservation budget transactions, by kind and status.",
	}, []string{"kind", "status"})
)

// InvariantCollectors returns invariant metric collectors.
func InvariantCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		BudgetTransactionsTotal,
		EnforcerState,
		EnforcerTransitionsTotal,
		InvariantViolationsTotal,
		ValidationsTotal,
	}
}

// AtlasCollectors returns all collectors of the engine.
func AtlasCollectors() []prometheus.Collector {
	var out = ProjectionCollectors()
	out = append(out, ShardCollectors()...)
	return append(out, InvariantCollectors()...)
}
