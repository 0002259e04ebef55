package audit

// TimestampFormat is the layout used in entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Entry is one line in the hash-chained call log: a single tool call as the
// accounting layer saw it. Fields are plain values so json.Marshal output is
// stable and the chain hash is reproducible.
type Entry struct {
	Timestamp  string  `json:"ts"`
	CallID     string  `json:"call_id"`
	Tool       string  `json:"tool"`
	Role       string  `json:"role"`
	Outcome    string  `json:"outcome"`
	Rule       string  `json:"rule,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	PolicyHash string  `json:"policy_hash"`
	PrevHash   string  `json:"prev_hash"`
}
