package stage

import "fmt"

// Health summarizes the readiness of one stage.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Health reports whether the stage can accept work.
func (s *Stage[T, D]) Health() Health {
	switch {
	case s.Stopped():
		return Health{Name: s.name, Detail: "stopped"}
	case s.Workers() == 0:
		return Health{Name: s.name, Detail: "no workers attached"}
	default:
		return Health{
			Name:   s.name,
			Ready:  true,
			Detail: fmt.Sprintf("busy=%d pending=%d", s.Busy(), s.Pending()),
		}
	}
}
