package geometry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ToWKT renders one GeoJSON geometry as its Well-Known Text form.
//
// The second return value reports whether the geometry produced text: an
// unsupported type, a missing type or coordinates member, or a malformed
// coordinate nesting all yield ("", false) rather than an error, and the
// caller decides whether to drop the record or fail.
func ToWKT(g *Geometry) (string, bool) {
	if g == nil || g.Type == "" || len(g.Coordinates) == 0 {
		return "", false
	}

	coords, err := decodeCoordinates(g.Coordinates)
	if err != nil {
		return "", false
	}

	switch strings.ToUpper(g.Type) {
	case "POINT":
		point, ok := pointText(coords)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("POINT(%s)", point), true
	case "LINESTRING":
		points, ok := pointListText(coords)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("LINESTRING(%s)", points), true
	case "MULTIPOINT":
		points, ok := pointListText(coords)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("MULTIPOINT(%s)", points), true
	case "POLYGON":
		rings, ok := ringListText(coords)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("POLYGON(%s)", rings), true
	case "MULTILINESTRING":
		lines, ok := ringListText(coords)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("MULTILINESTRING(%s)", lines), true
	case "MULTIPOLYGON":
		polygons, ok := polygonListText(coords)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("MULTIPOLYGON(%s)", polygons), true
	default:
		return "", false
	}
}

// decodeCoordinates parses the raw coordinate array with json.Number so
// values re-render with their original precision, never rounded.
func decodeCoordinates(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var coords any
	if err := dec.Decode(&coords); err != nil {
		return nil, err
	}
	return coords, nil
}

// pointText renders one position as "x y" (trailing ordinates kept).
func pointText(v any) (string, bool) {
	position, ok := v.([]any)
	if !ok || len(position) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(position))
	for _, ordinate := range position {
		num, ok := ordinate.(json.Number)
		if !ok {
			return "", false
		}
		parts = append(parts, num.String())
	}
	return strings.Join(parts, " "), true
}

func pointListText(v any) (string, bool) {
	points, ok := v.([]any)
	if !ok || len(points) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(points))
	for _, point := range points {
		text, ok := pointText(point)
		if !ok {
			return "", false
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, ", "), true
}

func ringListText(v any) (string, bool) {
	rings, ok := v.([]any)
	if !ok || len(rings) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(rings))
	for _, ring := range rings {
		text, ok := pointListText(ring)
		if !ok {
			return "", false
		}
		parts = append(parts, "("+text+")")
	}
	return strings.Join(parts, ", "), true
}

func polygonListText(v any) (string, bool) {
	polygons, ok := v.([]any)
	if !ok || len(polygons) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(polygons))
	for _, polygon := range polygons {
		text, ok := ringListText(polygon)
		if !ok {
			return "", false
		}
		parts = append(parts, "("+text+")")
	}
	return strings.Join(parts, ", "), true
}
