package geometry

import "encoding/json"

// Geometry is one GeoJSON geometry object. Coordinates are kept raw so the
// original numeric precision survives re-encoding.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature is one GeoJSON feature. Geometry and Properties stay raw: the
// merge path needs property keys in their original order, and the preview
// path passes through geometry text produced by the warehouse verbatim.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeatureCollection(features []Feature) *FeatureCollection {
	if features == nil {
		features = make([]Feature, 0)
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}
