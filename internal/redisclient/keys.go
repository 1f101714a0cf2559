package redisclient

// DefaultPrefix is used when no key prefix is configured.
const DefaultPrefix = "pbx:"

// RecordingsKey returns the key of the hash of recorded conversations.
func RecordingsKey(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "recordings"
}
