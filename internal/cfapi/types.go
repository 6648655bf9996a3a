package cfapi

import "encoding/json"

// VerdictOK is the Codeforces success sentinel for a submission.
const VerdictOK = "OK"

// envelope is the common Codeforces API response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Problem is one entry of the problemset catalog.
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    int      `json:"rating,omitempty"`
	Tags      []string `json:"tags"`
}

type problemsetResult struct {
	Problems []Problem `json:"problems"`
}

// ProblemRef identifies the problem a submission targets.
type ProblemRef struct {
	ContestID int    `json:"contestId"`
	Index     string `json:"index"`
}

// Submission is one entry of a user's submission history.
type Submission struct {
	ID                  int64      `json:"id"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	Problem             ProblemRef `json:"problem"`
	Verdict             string     `json:"verdict,omitempty"`
}

// UserInfo is the subset of user.info this service reads.
type UserInfo struct {
	Handle string `json:"handle"`
	Rating *int   `json:"rating,omitempty"`
}
