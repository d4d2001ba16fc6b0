package housing

import (
	"context"

	"gorm.io/gorm"
)

// FilterSpec selects the housing records targeted by a batch mutation. A
// zero spec selects nothing; All selects every record in scope.
type FilterSpec struct {
	All         bool
	GeoCodes    []GeoCode
	HousingIDs  []HousingID
	Statuses    []Status
	Occupancies []Occupancy
}

func (f FilterSpec) empty() bool {
	return !f.All && len(f.GeoCodes) == 0 && len(f.HousingIDs) == 0 &&
		len(f.Statuses) == 0 && len(f.Occupancies) == 0
}

// FilterResolver turns a filter specification plus the caller's
// establishment scope into a concrete set of housing keys. Implementations
// must exclude housing outside the scope; the mutation engine consumes the
// result opaquely and never re-applies scope filtering.
type FilterResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, spec FilterSpec, scope []GeoCode) ([]HousingKey, error)
}

// ScopedResolver resolves filters directly against the housing table,
// intersecting every clause with the caller's establishment scope.
type ScopedResolver struct{}

// NewScopedResolver constructs the default database-backed resolver.
func NewScopedResolver() *ScopedResolver {
	return &ScopedResolver{}
}

// Resolve implements FilterResolver.
func (r *ScopedResolver) Resolve(ctx context.Context, tx *gorm.DB, spec FilterSpec, scope []GeoCode) ([]HousingKey, error) {
	if len(scope) == 0 || spec.empty() {
		return nil, nil
	}

	scopeCodes := make([]string, 0, len(scope))
	for _, code := range scope {
		scopeCodes = append(scopeCodes, code.String())
	}

	query := tx.WithContext(ctx).
		Model(&HousingRecord{}).
		Where("geo_code IN ?", scopeCodes)

	if len(spec.GeoCodes) > 0 {
		codes := make([]string, 0, len(spec.GeoCodes))
		for _, code := range spec.GeoCodes {
			codes = append(codes, code.String())
		}
		query = query.Where("geo_code IN ?", codes)
	}
	if len(spec.HousingIDs) > 0 {
		ids := make([]string, 0, len(spec.HousingIDs))
		for _, id := range spec.HousingIDs {
			ids = append(ids, id.String())
		}
		query = query.Where("id IN ?", ids)
	}
	if len(spec.Statuses) > 0 {
		query = query.Where("status IN ?", spec.Statuses)
	}
	if len(spec.Occupancies) > 0 {
		query = query.Where("occupancy IN ?", spec.Occupancies)
	}

	type keyRow struct {
		GeoCode string
		ID      string
	}
	var rows []keyRow
	if err := query.
		Select("geo_code", "id").
		Order("geo_code").
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	keys := make([]HousingKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, HousingKey{GeoCode: GeoCode(row.GeoCode), ID: HousingID(row.ID)})
	}
	return keys, nil
}
