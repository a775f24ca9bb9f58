// Package greeting defines the core data types flowing through the greeting pipeline.
//
// A greeting request carries a raw, untrusted name and a flavor. The name is
// validated here before anything downstream sees it, and every failure in the
// pipeline is expressed as exactly one *Error from the closed taxonomy in
// errors.go.
package greeting

import (
	"fmt"
	"strings"
)

// Flavor selects which greeting template is used and which share-link path
// segment is derived for a request.
type Flavor string

const (
	// Standard is the default greeting ("bomboclaat").
	Standard Flavor = "standard"

	// Alternate is the second greeting template ("pussyclaat").
	Alternate Flavor = "alternate"
)

// Flavors lists every known flavor in a stable order.
var Flavors = []Flavor{Standard, Alternate}

// TemplateName returns the prompt template requested from the templating service.
func (f Flavor) TemplateName() string {
	if f == Alternate {
		return "Island Prompt P"
	}
	return "Island Prompt"
}

// PathSegment returns the share-link path segment for the flavor.
func (f Flavor) PathSegment() string {
	if f == Alternate {
		return "pussyclaat"
	}
	return "bomboclaat"
}

// Endpoint returns the API path the client posts to for this flavor.
func (f Flavor) Endpoint() string {
	if f == Alternate {
		return "/api/greet-pussyclaat"
	}
	return "/api/greet"
}

// Valid reports whether f is one of the known flavors.
func (f Flavor) Valid() bool {
	return f == Standard || f == Alternate
}

// ParseFlavor accepts either a flavor name ("standard", "alternate") or a
// share-link path segment ("bomboclaat", "pussyclaat").
func ParseFlavor(s string) (Flavor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "bomboclaat":
		return Standard, nil
	case "alternate", "pussyclaat":
		return Alternate, nil
	default:
		return "", fmt.Errorf("unknown greeting flavor %q", s)
	}
}

// Request is an incoming greeting request from any transport.
type Request struct {
	// Name is the raw decoded JSON value of the "name" field. It is typed
	// as any because the boundary must reject non-string values itself.
	Name any `json:"name"`

	// Flavor selects the greeting template. Set by the transport from the
	// route or subject, never from the body.
	Flavor Flavor `json:"-"`
}
