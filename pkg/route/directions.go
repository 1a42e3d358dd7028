package route

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// StripHTML removes markup from a provider instruction and collapses
// whitespace. Block-level tags become spaces so words do not run together.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

type directionsLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type directionsStep struct {
	HTMLInstructions string `json:"html_instructions"`
	Instructions     string `json:"instructions"`
	Maneuver         string `json:"maneuver"`
	Distance         struct {
		Value float64 `json:"value"`
	} `json:"distance"`
	StartLocation *directionsLatLng `json:"start_location"`
	EndLocation   *directionsLatLng `json:"end_location"`
}

type directionsResult struct {
	Routes []struct {
		Legs []struct {
			Steps []directionsStep `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// ParseDirections converts a directions-service JSON result into steps.
// Only the first route is used; its legs are concatenated.
func ParseDirections(data []byte) ([]Step, error) {
	var res directionsResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("route: decode directions: %w", err)
	}
	if len(res.Routes) == 0 {
		return nil, ErrNoRoute
	}

	var steps []Step
	for _, leg := range res.Routes[0].Legs {
		for _, ds := range leg.Steps {
			text := ds.HTMLInstructions
			if text == "" {
				text = ds.Instructions
			}
			step := Step{
				Instruction:    StripHTML(text),
				Maneuver:       ParseManeuver(ds.Maneuver),
				DistanceMeters: ds.Distance.Value,
			}
			if ds.StartLocation != nil {
				step.Start = &Coordinate{Lat: ds.StartLocation.Lat, Lng: ds.StartLocation.Lng}
			}
			if ds.EndLocation != nil {
				step.End = &Coordinate{Lat: ds.EndLocation.Lat, Lng: ds.EndLocation.Lng}
			}
			steps = append(steps, step)
		}
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// FileSource reads steps from a JSON file on every call. The file may hold
// either a plain array of steps or a directions result.
type FileSource struct {
	Path string
}

// Steps loads and validates the file.
func (f FileSource) Steps(ctx context.Context) ([]Step, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("route: read %s: %w", f.Path, err)
	}
	return Decode(data)
}

// Decode accepts a JSON array of steps or a directions result.
func Decode(data []byte) ([]Step, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var steps []Step
		if err := json.Unmarshal(data, &steps); err != nil {
			return nil, fmt.Errorf("route: decode steps: %w", err)
		}
		for i := range steps {
			steps[i].Maneuver = ParseManeuver(string(steps[i].Maneuver))
		}
		if err := Validate(steps); err != nil {
			return nil, err
		}
		return steps, nil
	}
	return ParseDirections(data)
}
