package security

import (
	"fmt"

	"github.com/hyperos-labs/agent-core/internal/domain"
)

// Severity grades how risky a screen zone is to interact with.
type Severity string

const (
	// SeverityHigh blocks the action.
	SeverityHigh Severity = "high"
	// SeverityMedium warns but lets the action proceed.
	SeverityMedium Severity = "medium"
	// SeverityLow warns but lets the action proceed.
	SeverityLow Severity = "low"
)

// Zone is a rectangular screen region with an associated risk severity.
type Zone struct {
	Name     string
	XMin     int
	XMax     int
	YMin     int
	YMax     int
	Severity Severity
}

func (z Zone) contains(x, y int) bool {
	return x >= z.XMin && x <= z.XMax && y >= z.YMin && y <= z.YMax
}

// CoordinateGuard vets proposed pointer targets against screen bounds and a
// set of risky zones (window close controls, system tray, launcher).
type CoordinateGuard struct {
	width  int
	height int
	zones  []Zone
}

// NewCoordinateGuard builds a guard for the given screen size with the
// default risk zones placed relative to the bounds.
func NewCoordinateGuard(width, height int) *CoordinateGuard {
	return &CoordinateGuard{
		width:  width,
		height: height,
		zones: []Zone{
			{
				Name: "window_close_button",
				XMin: width - 50, XMax: width,
				YMin: 0, YMax: 40,
				Severity: SeverityHigh,
			},
			{
				Name: "system_tray",
				XMin: width - 200, XMax: width,
				YMin: height - 50, YMax: height,
				Severity: SeverityMedium,
			},
			{
				Name: "start_menu",
				XMin: 0, XMax: 60,
				YMin: height - 60, YMax: height,
				Severity: SeverityLow,
			},
		},
	}
}

// Check vets a single coordinate. ok=false means the target is blocked
// (out of bounds or inside a high-severity zone); a non-empty warning with
// ok=true means execution proceeds but the zone is worth logging.
func (g *CoordinateGuard) Check(x, y int) (ok bool, warning string) {
	if x < 0 || x > g.width || y < 0 || y > g.height {
		return false, fmt.Sprintf("coordinates (%d, %d) are outside screen bounds %dx%d", x, y, g.width, g.height)
	}

	for _, z := range g.zones {
		if !z.contains(x, y) {
			continue
		}
		if z.Severity == SeverityHigh {
			return false, fmt.Sprintf("target (%d, %d) is inside blocked zone %q", x, y, z.Name)
		}
		return true, fmt.Sprintf("target (%d, %d) is near sensitive zone %q", x, y, z.Name)
	}

	return true, ""
}

// CheckAction applies the guard to the pointer target of an action, if it
// has one. Non-pointer actions always pass.
func (g *CoordinateGuard) CheckAction(a domain.Action) (ok bool, warning string) {
	switch act := a.(type) {
	case domain.ClickAction:
		return g.Check(act.X, act.Y)
	case domain.TypeAction:
		if act.X != nil && act.Y != nil {
			return g.Check(*act.X, *act.Y)
		}
	}
	return true, ""
}
