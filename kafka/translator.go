package kafka

import (
	apperrors "github.com/kbukum/playurl/errors"
)

// FromKafka converts a Kafka error to an AppError.
func FromKafka(err error, topic string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) || IsRetryableError(err) {
		return apperrors.ServiceUnavailable("message broker").
			WithDetail("topic", topic).
			WithCause(err)
	}
	if IsNonRetryableError(err) {
		return apperrors.Internal(err).WithDetail("topic", topic)
	}
	return apperrors.ExternalServiceError("message broker", err)
}
