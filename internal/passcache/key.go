package passcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sells-group/precon-cli/internal/model"
)

// KeyInputs are the complete inputs to a cache key. Changing the prompt
// schema version invalidates every prior entry: any prompt change forces
// cache misses across the board.
type KeyInputs struct {
	Pass           int               `json:"pass"`
	Backend        string            `json:"backend"`
	Purpose        model.PassPurpose `json:"purpose"`
	DocFingerprint string            `json:"doc_fingerprint"`
	AncestorHashes []string          `json:"ancestor_hashes"` // ordered by ancestor pass number
	SchemaVersion  string            `json:"schema_version"`
}

// Key derives the content-addressed key: a sha256 over the canonical JSON
// encoding of the inputs. A pure function, so identical inputs always map
// to the same entry.
func (in KeyInputs) Key() string {
	// Struct field order is fixed, so encoding/json is canonical here.
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ResultFingerprint hashes a pass result's response payload. Dependent
// passes mix these into their own keys, so a changed ancestor result
// changes every descendant key.
func ResultFingerprint(r model.PassResult) string {
	sum := sha256.Sum256(r.ResponseJSON)
	return hex.EncodeToString(sum[:])
}
