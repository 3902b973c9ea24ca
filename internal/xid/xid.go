package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed identifier such as "shf_0b6c...". Prefixes keep
// ids readable in logs and audit rows.
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
