package judge

import (
	"math"

	"github.com/juezlab/grader/internal/models"
	"github.com/juezlab/grader/internal/protocol"
)

// Score computes the point-weighted score on a 0-100 scale. Case results
// carry the 1-based fixture index as CaseID, matching the staging order
// of testCases, so a runner that skips or reorders cases still credits
// the right fixtures. A zero total yields 0, never a division crash.
func Score(cases []protocol.CaseResult, testCases []models.TestCase) int {
	total := models.TotalPoints(testCases)
	if total <= 0 {
		return 0
	}

	earned := 0
	seen := make(map[int]bool, len(cases))
	for _, c := range cases {
		if c.CaseID < 1 || c.CaseID > len(testCases) || seen[c.CaseID] {
			continue
		}
		seen[c.CaseID] = true
		if c.Status == protocol.CaseOK {
			earned += testCases[c.CaseID-1].Points
		}
	}

	return int(math.Round(100 * float64(earned) / float64(total)))
}

// VerdictStatus maps the runner's aggregate status to the submission's
// external verdict. The runner's own status is authoritative; a perfect
// score never moves a submission to accepted unless the runner said
// ACCEPTED. Anything unrecognized collapses to error.
func VerdictStatus(runnerStatus string) string {
	switch runnerStatus {
	case protocol.StatusAccepted:
		return models.SubmissionStatusAccepted
	case protocol.StatusWrongAnswer, protocol.StatusPartial:
		return models.SubmissionStatusWrongAnswer
	default:
		return models.SubmissionStatusError
	}
}
