package metrics

// Metric names recorded by the core pipeline and transform engine. Keeping
// them as constants here means the pipeline and the transform package never
// duplicate a literal metric name.
const (
	TransformExecutionsTotal   = "transform_executions_total"
	TransformQueueDepth        = "transform_queue_depth"
	TransformExecutionDuration = "transform_duration_seconds"
	MutationDuration           = "mutation_duration_seconds"
	QueryDuration              = "query_duration_seconds"
)

// Outcome label values for TransformExecutionsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDead    = "dead"
)
