// Package featurepack stores per-category GeoJSON feature collections in a
// single SQLite database.
package featurepack

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata describes a feature pack.
type Metadata struct {
	Name        string // Human-readable pack identifier
	Attribution string // Attribution text
	Description string // Human-readable description
	Version     string // Version string
	Bounds      [4]float64
}

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	if m.Name != "" {
		result["name"] = m.Name
	}
	if m.Bounds != [4]float64{} {
		result["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}
	if m.Attribution != "" {
		result["attribution"] = m.Attribution
	}
	if m.Description != "" {
		result["description"] = m.Description
	}
	if m.Version != "" {
		result["version"] = m.Version
	}

	return result
}

func metadataFromMap(metaMap map[string]string) Metadata {
	meta := Metadata{
		Name:        metaMap["name"],
		Attribution: metaMap["attribution"],
		Description: metaMap["description"],
		Version:     metaMap["version"],
	}

	// Parse bounds: "minLon,minLat,maxLon,maxLat"
	if v, ok := metaMap["bounds"]; ok {
		parts := strings.Split(v, ",")
		if len(parts) == 4 {
			for i, part := range parts {
				if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
					meta.Bounds[i] = f
				}
			}
		}
	}

	return meta
}

// Entry is one stored collection.
type Entry struct {
	Category     string
	Endpoint     string // where the collection was originally loaded from
	FeatureCount int
}
