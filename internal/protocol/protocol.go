package protocol

// Aggregate statuses emitted by a runner, plus the infrastructure
// statuses the launcher may substitute when the runner never produced
// parseable output.
const (
	StatusAccepted         = "ACCEPTED"
	StatusWrongAnswer      = "WRONG_ANSWER"
	StatusPartial          = "PARTIAL"
	StatusRuntimeError     = "RUNTIME_ERROR"
	StatusCompilationError = "COMPILATION_ERROR"
	StatusTimeLimit        = "TIME_LIMIT_EXCEEDED"
	StatusError            = "ERROR"
)

// Per-case statuses.
const (
	CaseOK           = "OK"
	CaseWrongAnswer  = "WRONG_ANSWER"
	CaseRuntimeError = "RUNTIME_ERROR"
	CaseTLE          = "TLE"
)

// Payload is the single JSON document the runner reads from standard
// input before grading begins.
type Payload struct {
	SourceFile  string `json:"source_file"`
	TimeLimitMs int64  `json:"time_limit_ms"`
}

// CaseResult describes the outcome of one fixture.
type CaseResult struct {
	CaseID int    `json:"caseId"`
	Status string `json:"status"`
	TimeMs int64  `json:"timeMs"`
	Stderr string `json:"stderr,omitempty"`
}

// Result is the aggregate verdict the runner writes to standard output
// exactly once before it terminates.
type Result struct {
	Status      string       `json:"status"`
	TimeMsTotal int64        `json:"timeMsTotal"`
	Cases       []CaseResult `json:"cases"`
	Stderr      string       `json:"stderr,omitempty"`
}

// Aggregate applies the strict priority rule to a set of case results:
// a single runtime failure or timeout dominates everything, a single
// wrong answer dominates correct cases, and only an all-OK run is
// accepted.
func Aggregate(cases []CaseResult) string {
	wrong := false
	for _, c := range cases {
		switch c.Status {
		case CaseRuntimeError, CaseTLE:
			return StatusRuntimeError
		case CaseWrongAnswer:
			wrong = true
		}
	}
	if wrong {
		return StatusWrongAnswer
	}
	return StatusAccepted
}
