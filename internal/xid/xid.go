package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns "<prefix>-<uuid>". Random-source failures fall back to a
// timestamp so id generation never blocks a write.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + id.String()
}
