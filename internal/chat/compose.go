package chat

import (
	"fmt"

	"github.com/varsilias/siap-chat/pkg/types"
)

// History translates transcript messages into the upstream history shape.
// The result is never nil so it encodes as an empty JSON array.
func History(msgs []types.Message) []types.HistoryEntry {
	out := make([]types.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, types.HistoryEntry{Role: m.Sender.Role(), Content: m.Text})
	}
	return out
}

// FailureText is the bot message shown when a turn fails.
func FailureText(err error) string {
	return fmt.Sprintf("Sorry, something went wrong. (%s)", err)
}
