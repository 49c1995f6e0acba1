package bigquery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shubhampathak24/shape-to-bq/internal/geometry"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

// Preview reads rows back from a loaded table and reshapes them into a
// GeoJSON feature collection. The geometry column is re-encoded to GeoJSON
// by the warehouse itself via ST_ASGEOJSON; every other column becomes a
// feature property. bearer is the caller-supplied access token; when empty
// the ambient credential is used.
func (c *Client) Preview(ctx context.Context, projectID, targetTable string, limit int, bearer string) (*geometry.FeatureCollection, error) {
	dataset, table, err := jobs.SplitTargetTable(targetTable)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT *, ST_ASGEOJSON(geometry) AS geojson FROM `%s.%s.%s`", projectID, dataset, table)
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.Query(ctx, projectID, sql, bearer)
	if err != nil {
		return nil, err
	}

	features := make([]geometry.Feature, 0, len(rows))
	for _, row := range rows {
		feature := geometry.Feature{Type: "Feature"}

		if geo, ok := row["geojson"].(string); ok && geo != "" {
			feature.Geometry = json.RawMessage(geo)
		}
		delete(row, "geojson")
		delete(row, "geometry")

		props, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode feature properties: %w", err)
		}
		feature.Properties = props
		features = append(features, feature)
	}

	return geometry.NewFeatureCollection(features), nil
}
