package parsers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
)

// ErrUnknownBackend is returned by the registry for backend tags with no
// registered parser family. The orchestrator fails the task; there is no
// silent no-op path for unrecognized backends.
var ErrUnknownBackend = errors.New("unknown backend")

// UnsupportedModelError is returned by the URL builder when the requested
// model is not present in the model registry.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model: %s", e.Model)
}

// MissingPlaceholderError is returned when a URL template references tokens
// that cannot be resolved from any source. city_code is the one token
// allowed to be absent and never appears here.
type MissingPlaceholderError struct {
	DealerID int64
	Tokens   []string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("missing placeholder token(s) {%s} for dealer %d",
		strings.Join(e.Tokens, ", "), e.DealerID)
}

// DealerOnError is raised when DealerOn markup cannot be parsed into API
// configuration. The orchestrator inspects the page for SmartPath or Team
// Velocity fingerprints before surfacing it.
type DealerOnError struct {
	Reason string
}

func (e *DealerOnError) Error() string {
	return fmt.Sprintf("dealeron parse: %s", e.Reason)
}

// SmartPathError is raised when SmartPath markup is missing the embedded
// Typesense configuration. The orchestrator sweeps candidate inventory URLs
// with the fallback parser chain before surfacing it.
type SmartPathError struct {
	Reason string
}

func (e *SmartPathError) Error() string {
	return fmt.Sprintf("smartpath parse: %s", e.Reason)
}

// TeamVelocityError is raised when Team Velocity markup carries no usable
// structured data.
type TeamVelocityError struct {
	Reason string
}

func (e *TeamVelocityError) Error() string {
	return fmt.Sprintf("team velocity parse: %s", e.Reason)
}

// IsBackendParseError reports whether err is one of the backend-specific
// parse failures that the fallback chain is allowed to swallow.
func IsBackendParseError(err error) bool {
	var dealerOn *DealerOnError
	var smartPath *SmartPathError
	var teamVelocity *TeamVelocityError
	return errors.As(err, &dealerOn) || errors.As(err, &smartPath) || errors.As(err, &teamVelocity)
}

// unknownBackendError decorates ErrUnknownBackend with the offending tag.
func unknownBackendError(backend models.Backend) error {
	return fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
}
