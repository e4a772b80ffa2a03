// -----------------------------------------------------------------------
// Scan Result - Envelope returned by the external pattern detector
// -----------------------------------------------------------------------

package models

// Scan types produced by the pattern detector.
const (
	ScanTypeIntraProject = "intra-project"
	ScanTypeInterProject = "inter-project"
)

// HighImpactThreshold is the impact_score at or above which a duplicate group
// counts as high-impact.
const HighImpactThreshold = 75

// ScanResult is the detector's result envelope. The payload is opaque to the
// orchestration layer; only the fields below are read.
type ScanResult map[string]interface{}

// ScanType returns the scan_type field, defaulting to intra-project.
func (r ScanResult) ScanType() string {
	if v, ok := r["scan_type"].(string); ok && v != "" {
		return v
	}
	return ScanTypeIntraProject
}

// Metrics returns the metrics sub-object, never nil.
func (r ScanResult) Metrics() map[string]interface{} {
	if m, ok := r["metrics"].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// TotalGroups returns the duplicate group count for the scan type:
// total_duplicate_groups for intra-project scans, total_cross_repository_groups
// for inter-project scans.
func (r ScanResult) TotalGroups() int {
	m := r.Metrics()
	key := "total_duplicate_groups"
	if r.ScanType() == ScanTypeInterProject {
		key = "total_cross_repository_groups"
	}
	return intField(m, key)
}

// TotalSuggestions returns metrics.total_suggestions.
func (r ScanResult) TotalSuggestions() int {
	return intField(r.Metrics(), "total_suggestions")
}

// Groups returns the duplicate group list for the scan type.
func (r ScanResult) Groups() []map[string]interface{} {
	key := "duplicate_groups"
	if r.ScanType() == ScanTypeInterProject {
		key = "cross_repository_duplicates"
	}
	raw, ok := r[key].([]interface{})
	if !ok {
		return nil
	}
	groups := make([]map[string]interface{}, 0, len(raw))
	for _, g := range raw {
		if m, ok := g.(map[string]interface{}); ok {
			groups = append(groups, m)
		}
	}
	return groups
}

// HighImpactCount counts duplicate groups with impact_score >= the threshold.
func (r ScanResult) HighImpactCount() int {
	count := 0
	for _, g := range r.Groups() {
		if intField(g, "impact_score") >= HighImpactThreshold {
			count++
		}
	}
	return count
}

// FromCache reports whether the result carries cache_metadata.from_cache.
func (r ScanResult) FromCache() bool {
	cm, ok := r["cache_metadata"].(map[string]interface{})
	if !ok {
		return false
	}
	v, ok := cm["from_cache"].(bool)
	return ok && v
}

// intField reads an int-valued field that may arrive as float64 from JSON.
func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
