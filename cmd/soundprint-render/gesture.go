package main

import (
	"fmt"
	"strconv"
	"strings"
)

// gesture is a scripted pointer: given the run progress it returns the
// pointer position and whether it is pressed.
type gesture func(progress float64) (x, y float64, pressed bool)

// parseGesture reads "none", "hold:X,Y", "sweep:Y" or "diagonal".
func parseGesture(s string) (gesture, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(strings.ToLower(s)), ":")
	switch name {
	case "", "none":
		return func(float64) (float64, float64, bool) { return 0.5, 0.5, false }, nil
	case "hold":
		parts := strings.Split(arg, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("hold needs X,Y, got %q", arg)
		}
		x, err := parseUnit(parts[0])
		if err != nil {
			return nil, err
		}
		y, err := parseUnit(parts[1])
		if err != nil {
			return nil, err
		}
		return func(float64) (float64, float64, bool) { return x, y, true }, nil
	case "sweep":
		y, err := parseUnit(arg)
		if err != nil {
			return nil, err
		}
		return func(p float64) (float64, float64, bool) { return p, y, true }, nil
	case "diagonal":
		return func(p float64) (float64, float64, bool) { return p, p, true }, nil
	}
	return nil, fmt.Errorf("unknown gesture %q", s)
}

func parseUnit(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("coordinate %g outside [0,1]", v)
	}
	return v, nil
}
