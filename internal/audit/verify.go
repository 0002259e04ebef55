package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLine = 1 << 20

// VerifyResult holds the outcome of a chain check.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify checks the hash chain of the log at path.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()
	return VerifyReader(f)
}

// VerifyReader checks a chain read from r. The first entry must point at
// GenesisHash and every later entry at the hash of the line before it.
func VerifyReader(r io.Reader) VerifyResult {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	expected := GenesisHash
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return VerifyResult{Lines: n - 1, Error: fmt.Sprintf("parse error: %v", err), ErrorLine: n}
		}
		if e.PrevHash != expected {
			msg := fmt.Sprintf("hash mismatch: expected %s, got %s", expected, e.PrevHash)
			if n == 1 {
				msg = fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", e.PrevHash)
			}
			return VerifyResult{Lines: n - 1, Error: msg, ErrorLine: n}
		}
		expected = HashLine(line)
	}
	if err := sc.Err(); err != nil {
		return VerifyResult{Lines: n, Error: fmt.Sprintf("scan: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: n}
}
