package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Key computes a deterministic SHA-256 key from the scope name and the
// request. Requests are encoded as JSON; values JSON cannot encode fall
// back to their Go syntax representation. The key is hex-encoded.
func Key(scope string, request any) string {
	h := sha256.New()

	h.Write([]byte(scope))
	h.Write([]byte{0}) // separator

	if b, err := json.Marshal(request); err == nil {
		h.Write(b)
	} else {
		fmt.Fprintf(h, "%T:%#v", request, request)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
