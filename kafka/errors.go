package kafka

import "strings"

type errorClass int

const (
	classUnknown errorClass = iota
	classConnection
	classTransient
	classPermanent
)

// kafka-go surfaces broker and network failures as plain strings, so
// classification goes by message fragments. First match wins.
var errorPatterns = []struct {
	fragment string
	class    errorClass
}{
	{"connection refused", classConnection},
	{"connection reset", classConnection},
	{"connection closed", classConnection},
	{"broken pipe", classConnection},
	{"i/o timeout", classConnection},
	{"no route to host", classConnection},
	{"network is unreachable", classConnection},
	{"network exception", classConnection},
	{"broker not available", classConnection},
	{"leader not available", classConnection},
	{"dial tcp", classConnection},
	{"request timed out", classTransient},
	{"not enough replicas", classTransient},
	{"offset out of range", classTransient},
	{"temporary", classTransient},
	{"message too large", classPermanent},
	{"invalid topic", classPermanent},
	{"invalid partition", classPermanent},
	{"unknown topic", classPermanent},
	{"authorization failed", classPermanent},
}

func classifyError(err error) errorClass {
	if err == nil {
		return classUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.fragment) {
			return p.class
		}
	}
	return classUnknown
}

// IsConnectionError reports whether err means the broker could not be reached.
func IsConnectionError(err error) bool {
	return classifyError(err) == classConnection
}

// IsRetryableError reports whether a publish that failed with err may succeed
// on a later attempt.
func IsRetryableError(err error) bool {
	c := classifyError(err)
	return c == classConnection || c == classTransient
}

// IsNonRetryableError reports whether err will repeat on every attempt, such
// as an oversized notice or a missing topic.
func IsNonRetryableError(err error) bool {
	return classifyError(err) == classPermanent
}
