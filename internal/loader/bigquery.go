package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shubhampathak24/shape-to-bq/internal/geometry"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

// MergeResult describes one merged NDJSON stream ready for a warehouse load.
type MergeResult struct {
	NDJSONPath string
	Schema     []jobs.SchemaField
	Features   int
	Dropped    int
}

// MergeNDJSON flattens every member's feature collection into a single
// newline-delimited record stream at outPath. Each record is the feature's
// property map, in the feature's own key order, plus a trailing "geometry"
// field carrying the WKT encoding. Features whose geometry cannot be encoded
// are dropped, not null-filled.
//
// The returned schema is the caller-supplied one when custom is non-empty;
// otherwise it is synthesized as the union of all property keys across all
// features, dropped ones included, in first-seen order, every key typed
// STRING, plus a trailing GEOGRAPHY field named "geometry".
func MergeNDJSON(memberPaths []string, outPath string, custom []jobs.SchemaField) (result *MergeResult, err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create merged output: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(outPath)
		}
	}()

	w := bufio.NewWriter(out)
	var keyOrder []string
	seen := make(map[string]bool)
	features, dropped := 0, 0

	for _, path := range memberPaths {
		fc, err := readFeatureCollection(path)
		if err != nil {
			return nil, err
		}
		for _, f := range fc.Features {
			// Dropped features still count toward the schema union.
			keys, values, err := decodeProperties(f.Properties)
			if err != nil {
				return nil, fmt.Errorf("failed to read feature properties in %s: %w", path, err)
			}
			for _, k := range keys {
				if !seen[k] {
					seen[k] = true
					keyOrder = append(keyOrder, k)
				}
			}

			var geom geometry.Geometry
			if len(f.Geometry) > 0 {
				if err := json.Unmarshal(f.Geometry, &geom); err != nil {
					dropped++
					continue
				}
			}
			wkt, ok := geometry.ToWKT(&geom)
			if !ok {
				dropped++
				continue
			}
			if err := writeRecord(w, keys, values, wkt); err != nil {
				return nil, err
			}
			features++
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write merged output: %w", err)
	}

	schema := custom
	if len(schema) == 0 {
		schema = make([]jobs.SchemaField, 0, len(keyOrder)+1)
		for _, k := range keyOrder {
			schema = append(schema, jobs.SchemaField{Name: k, Type: jobs.FieldString, Mode: jobs.ModeNullable})
		}
		schema = append(schema, jobs.SchemaField{Name: "geometry", Type: jobs.FieldGeography, Mode: jobs.ModeNullable})
	}

	return &MergeResult{NDJSONPath: outPath, Schema: schema, Features: features, Dropped: dropped}, nil
}

func readFeatureCollection(path string) (*geometry.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted member: %w", err)
	}
	var fc geometry.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse converted member %s: %w", path, err)
	}
	return &fc, nil
}

// decodeProperties returns both the raw values and the key order as written
// in the document. A plain map loses the order, so keys are recovered with a
// token scan over the same bytes.
func decodeProperties(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil, nil
	}
	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v in properties", tok)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, nil, err
		}
	}
	return keys, values, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func writeRecord(w *bufio.Writer, keys []string, values map[string]json.RawMessage, wkt string) error {
	w.WriteByte('{')
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return err
		}
		w.Write(name)
		w.WriteByte(':')
		w.Write(values[k])
		w.WriteByte(',')
	}
	geom, err := json.Marshal(wkt)
	if err != nil {
		return err
	}
	w.WriteString(`"geometry":`)
	w.Write(geom)
	w.WriteByte('}')
	return w.WriteByte('\n')
}
