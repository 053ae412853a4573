package mqtt

import (
	"fmt"
	"strings"
)

// ValidateTopicName checks a topic used for publishing.
// Names must be non-empty and must not contain wildcards.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateTopicFilter checks a topic filter used for subscribing.
//
// '+' must occupy a whole level. '#' must occupy the last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty topic filter", ErrInvalidTopic)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}

	return nil
}
