package cache

import "fmt"

// Keys follow the hierarchical grammar cache:<domain>:<operation>:<scope...>
// so that a mutation can invalidate every derived entry for a recipient with
// one wildcard pattern.

// NotifiesKey is the read-path key for a recipient's notification list.
func NotifiesKey(userID string) string {
	return fmt.Sprintf("cache:notifications:getNotifies:%s:all", userID)
}

// NotifiesPattern matches every cached notification view for a recipient.
func NotifiesPattern(userID string) string {
	return fmt.Sprintf("cache:notifications:getNotifies:%s:*", userID)
}
