package workflow

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Canonicalize converts a source file into the canonical plaintext
// representation handed to the cipher. Structured (JSON) content passes
// through compacted, so semantically equal inputs encrypt to equal
// plaintexts; any other content is wrapped in a JSON object carrying the
// file name and base64 payload. Canonicalization is deterministic, which is
// what makes the round-trip comparison of decrypted output meaningful.
func Canonicalize(file *SourceFile) ([]byte, error) {
	if json.Valid(file.Data) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, file.Data); err != nil {
			return nil, fmt.Errorf("could not compact JSON input: %w", err)
		}
		return compact.Bytes(), nil
	}

	wrapped, err := json.Marshal(map[string]string{
		"name":    file.Name,
		"content": base64.StdEncoding.EncodeToString(file.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("could not wrap binary input: %w", err)
	}
	return wrapped, nil
}
