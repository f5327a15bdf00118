package natsbridge

import (
	"regexp"
	"strings"
)

// Subject mapping (NATS ↔ broker topics).
//
// Publishers write to NATS subjects under a fixed prefix; each distinct
// subject becomes one broker channel whose topic is the subject remainder
// with NATS dots rewritten to slashes:
//
//	fox.msg.robot.pose      → robot/pose
//	fox.msg.camera.front    → camera/front
//
// The prefix keeps bridge traffic separable from other tenants on a shared
// NATS cluster.

// SubjectPrefix is the namespace all bridged subjects live under.
const SubjectPrefix = "fox.msg."

// Subject tokens are restricted to what both NATS and topic names accept.
var tokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// TopicForSubject converts a NATS subject into a broker topic. Returns the
// empty string for subjects outside the prefix or with invalid tokens.
func TopicForSubject(subject string) string {
	if !strings.HasPrefix(subject, SubjectPrefix) {
		return ""
	}
	rest := strings.TrimPrefix(subject, SubjectPrefix)
	if rest == "" {
		return ""
	}
	tokens := strings.Split(rest, ".")
	for _, tok := range tokens {
		if !tokenPattern.MatchString(tok) {
			return ""
		}
	}
	return strings.Join(tokens, "/")
}

// SubjectForTopic converts a broker topic back into its NATS subject.
// Returns the empty string for topics the bridge cannot represent.
func SubjectForTopic(topic string) string {
	if topic == "" {
		return ""
	}
	segments := strings.Split(topic, "/")
	for _, seg := range segments {
		if !tokenPattern.MatchString(seg) {
			return ""
		}
	}
	return SubjectPrefix + strings.Join(segments, ".")
}
