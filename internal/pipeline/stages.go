package pipeline

// Stage names, also used as run-state pointers and attempt keys. An item
// moves acquire -> transcribe -> optimize -> summarize (waiting on its day)
// -> completed. Summarize and notify are day-level stages tracked on a
// synthetic per-day progress record.
const (
	StageAcquire    = "acquire"
	StageTranscribe = "transcribe"
	StageOptimize   = "optimize"
	StageSummarize  = "summarize"
	StageNotify     = "notify"
	StageCompleted  = "completed"
)

// dayKeyPrefix marks synthetic run-state records that carry the summarize
// and notify budgets for one calendar day.
const dayKeyPrefix = "day:"

func dayKey(day string) string {
	return dayKeyPrefix + day
}
