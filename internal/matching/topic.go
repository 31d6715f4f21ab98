package matching

import "strings"

// NormalizeTopic lower-cases and trims a topic for comparison.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// TopicsMatch reports whether two free-text topics describe the same
// activity: equal after normalization, or one contained in the other
// ("run" matches "long run").
//
// Containment is deliberately loose. A one-letter topic matches every topic
// containing that letter.
func TopicsMatch(a, b string) bool {
	na, nb := NormalizeTopic(a), NormalizeTopic(b)
	if na == nb {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
