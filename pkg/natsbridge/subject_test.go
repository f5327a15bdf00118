package natsbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicForSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"fox.msg.robot.pose", "robot/pose"},
		{"fox.msg.camera", "camera"},
		{"fox.msg.a.b.c", "a/b/c"},
		{"fox.msg.with_underscore.and-dash", "with_underscore/and-dash"},
		{"fox.msg.", ""},
		{"fox.msg.bad..token", ""},
		{"fox.msg.sp ace", ""},
		{"other.msg.robot", ""},
		{"fox.msg", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TopicForSubject(tt.subject), "subject %q", tt.subject)
	}
}

func TestSubjectForTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"robot/pose", "fox.msg.robot.pose"},
		{"camera", "fox.msg.camera"},
		{"", ""},
		{"bad//segment", ""},
		{"dot.inside", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubjectForTopic(tt.topic), "topic %q", tt.topic)
	}
}

func TestSubjectTopicRoundTrip(t *testing.T) {
	for _, topic := range []string{"robot/pose", "camera/front/raw", "imu"} {
		assert.Equal(t, topic, TopicForSubject(SubjectForTopic(topic)))
	}
}
