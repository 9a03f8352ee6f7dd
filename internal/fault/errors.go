package fault

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStoreUnavailable  = errors.New("baseline store unavailable")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrPolicy            = errors.New("policy error")
	ErrConfiguration     = errors.New("configuration error")
	ErrItem              = errors.New("item failure")
	ErrTransient         = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Startup reports whether err must abort the agent at process start. Nothing
// useful can run without the store, the broker, a valid policy, or a valid
// configuration.
func Startup(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrBrokerUnavailable),
		errors.Is(err, ErrPolicy),
		errors.Is(err, ErrConfiguration):
		return true
	default:
		return false
	}
}

// Kind returns a short classification label suitable for log fields and
// metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStoreUnavailable):
		return "store"
	case errors.Is(err, ErrBrokerUnavailable):
		return "broker"
	case errors.Is(err, ErrPolicy):
		return "policy"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrItem):
		return "item"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
