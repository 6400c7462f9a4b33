package observability

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AggregateErrors joins the non-nil errors, logs them as one structured entry and
// returns the joined error. It returns nil when every error is nil.
func AggregateErrors(operation string, errs []error, fields logrus.Fields) error {
	filtered := make([]error, 0, len(errs))
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		filtered = append(filtered, err)
		messages = append(messages, err.Error())
	}
	if len(filtered) == 0 {
		return nil
	}
	Log().WithFields(fields).WithFields(logrus.Fields{
		"operation":   operation,
		"error_count": len(filtered),
		"errors":      messages,
	}).Error("operation errors")
	joined := errors.Join(filtered...)
	return fmt.Errorf("%s failed: %w", operation, joined)
}
