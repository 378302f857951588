// Package port defines the four fixed connection slots on a node and the
// geometric router that picks which slots an edge should use.
package port

import (
	"encoding/json"
	"fmt"

	"github.com/c360/flowcanvas/errors"
)

// Port is one of the four fixed directional connection points on a node.
// The string value is the wire id used in Flow documents.
type Port string

const (
	// Input is the left-hand port
	Input Port = "input"
	// Output is the right-hand port
	Output Port = "output"
	// Top is the upper port
	Top Port = "top"
	// Bottom is the lower port
	Bottom Port = "bottom"
)

// All lists the ports in a stable order.
var All = []Port{Input, Output, Top, Bottom}

// Side names the geometric side of a port.
type Side string

// Sides of a node bounding box
const (
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

// Valid reports whether p is one of the four fixed slots.
func (p Port) Valid() bool {
	switch p {
	case Input, Output, Top, Bottom:
		return true
	}
	return false
}

// Side returns the side of the bounding box the port sits on.
func (p Port) Side() Side {
	switch p {
	case Input:
		return SideLeft
	case Output:
		return SideRight
	case Top:
		return SideTop
	case Bottom:
		return SideBottom
	}
	return ""
}

// Opposite returns the port on the facing side.
func (p Port) Opposite() Port {
	switch p {
	case Input:
		return Output
	case Output:
		return Input
	case Top:
		return Bottom
	case Bottom:
		return Top
	}
	return p
}

func (p Port) String() string {
	return string(p)
}

// Parse converts a wire id into a Port. The geometric aliases "left" and
// "right" are accepted. An empty string returns "" with no error, meaning
// "let the router decide".
func Parse(s string) (Port, error) {
	switch s {
	case "":
		return "", nil
	case "input", "left":
		return Input, nil
	case "output", "right":
		return Output, nil
	case "top":
		return Top, nil
	case "bottom":
		return Bottom, nil
	}
	return "", errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrInvalidPort, s), "port", "Parse", "port lookup")
}

// UnmarshalJSON accepts wire ids and aliases.
func (p *Port) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
