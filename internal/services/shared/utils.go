package shared

import (
	"fmt"
	"strings"

	"github.com/archon-research/farmsync/internal/domain/entity"
)

// DefaultKeyPrefix is the namespace of every externally stored snapshot key.
const DefaultKeyPrefix = "farmsync"

// SnapshotKey generates the storage key of one published farm.
// Format: {prefix}:{chainID}:{account}:{farm}, addresses lowercased so keys
// do not depend on checksum casing.
func SnapshotKey(prefix string, key entity.FarmKey) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return fmt.Sprintf("%s:%d:%s:%s", prefix, key.ChainID,
		strings.ToLower(key.Account.Hex()), strings.ToLower(key.Farm.Hex()))
}

// AccountKeyPattern returns a glob matching every snapshot key of one account.
func AccountKeyPattern(prefix string, chainID int64, account string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return fmt.Sprintf("%s:%d:%s:*", prefix, chainID, strings.ToLower(account))
}
