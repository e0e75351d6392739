package audit

import (
	"encoding/json"
	"fmt"
)

// VerifyResult holds the outcome of a hash chain verification.
// Head is the hash of the last intact line; it can be recorded elsewhere
// to detect truncation of the tail later.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Head      string `json:"head,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify reads a JSONL audit log and validates the hash chain.
// It reports the first broken link, if any.
func Verify(path string) VerifyResult {
	res := VerifyResult{Head: GenesisHash}

	err := eachLine(path, func(n int, line []byte) error {
		var link struct {
			PrevHash string `json:"prev_hash"`
		}
		if err := json.Unmarshal(line, &link); err != nil {
			res.Error, res.ErrorLine = fmt.Sprintf("parse error: %v", err), n
			return errStop
		}
		if link.PrevHash != res.Head {
			res.ErrorLine = n
			if n == 1 {
				res.Error = fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", link.PrevHash)
			} else {
				res.Error = fmt.Sprintf("hash mismatch: expected %s, got %s", res.Head, link.PrevHash)
			}
			return errStop
		}
		res.Head = HashLine(line)
		res.Lines = n
		return nil
	})
	switch {
	case err != nil:
		return VerifyResult{Error: fmt.Sprintf("read: %v", err)}
	case res.Error != "":
		return res
	}
	res.Valid = true
	return res
}
