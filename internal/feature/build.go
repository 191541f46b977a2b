package feature

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drkrodriguez/ISSS626-GAA/internal/attribute"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
)

// JoinPolicy selects how unmatched rows are treated. Under both policies
// only matched rows carry features into the output; they differ in which
// side's unmatched rows are considered noteworthy. This mirrors an inner
// versus left join where rows without attribute values cannot be clustered
// and are therefore dropped rather than padded with missing values.
type JoinPolicy string

const (
	// JoinInner drops unmatched rows on both sides and reports both counts.
	JoinInner JoinPolicy = "inner"
	// JoinLeft keeps the geometry table as the driving side: unmatched
	// geometry rows are dropped with a warning, unmatched attribute rows
	// are reported as informational.
	JoinLeft JoinPolicy = "left"
)

// ParseJoinPolicy validates a policy name.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(s) {
	case JoinInner, JoinLeft:
		return JoinPolicy(s), nil
	default:
		return "", eris.Errorf("feature: unknown join policy %q (use inner or left)", s)
	}
}

// JoinReport records the outcome of the geometry/attribute join.
type JoinReport struct {
	Policy        JoinPolicy `json:"policy"`
	Matched       int        `json:"matched"`
	GeometryOnly  int        `json:"geometry_only"`
	AttributeOnly int        `json:"attribute_only"`
}

// Table is the Stage 1 output: one row per matched region holding the
// region geometry reference and raw numeric indicator columns, in geometry
// table order.
type Table struct {
	geo     *geodata.Table
	columns []string
	colIdx  map[string]int
	data    [][]float64 // row-major, aligned with geo.Regions

	Report   JoinReport
	Warnings []string
}

// Build joins the geometry table with the attribute table on key and
// materializes every numeric column plus the derived rate columns. The id
// join is exact string equality. A join that matches nothing is fatal;
// partial matches are surfaced through the report and warnings before any
// downstream stage runs on the reduced row set.
func Build(geo *geodata.Table, attrs *attribute.Table, key string, spec *VarSpec, policy JoinPolicy) (*Table, error) {
	log := zap.L().With(zap.String("component", "feature"))

	if geo == nil || geo.Len() == 0 {
		return nil, eris.New("feature: geometry table is empty")
	}
	if attrs == nil || attrs.NumRows() == 0 {
		return nil, eris.New("feature: attribute table is empty")
	}
	if key == "" {
		return nil, eris.New("feature: join key is required")
	}
	if !attrs.HasColumn(key) {
		return nil, eris.Errorf("feature: attribute table has no join key column %q", key)
	}
	if spec == nil {
		spec = &VarSpec{}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	keyVals, err := attrs.Column(key)
	if err != nil {
		return nil, err
	}
	attrRow := make(map[string]int, len(keyVals))
	for i, k := range keyVals {
		if prev, ok := attrRow[k]; ok {
			return nil, eris.Errorf("feature: attribute table has duplicate key %q (rows %d and %d)", k, prev, i)
		}
		attrRow[k] = i
	}

	// Parse every numeric column of the attribute table once, up front.
	numericCols := attrs.NumericColumns()
	colVals := make(map[string][]float64, len(numericCols))
	for _, c := range numericCols {
		if c == key {
			continue
		}
		vals, err := attrs.NumericColumn(c)
		if err != nil {
			return nil, err
		}
		colVals[c] = vals
	}

	// Match geometry rows against attribute keys, preserving geometry order.
	var matchedIDs []string
	matchedAttr := make([]int, 0, geo.Len())
	for _, r := range geo.Regions {
		if row, ok := attrRow[r.ID]; ok {
			matchedIDs = append(matchedIDs, r.ID)
			matchedAttr = append(matchedAttr, row)
		}
	}

	report := JoinReport{
		Policy:        policy,
		Matched:       len(matchedIDs),
		GeometryOnly:  geo.Len() - len(matchedIDs),
		AttributeOnly: attrs.NumRows() - len(matchedIDs),
	}
	if report.Matched == 0 {
		return nil, eris.Errorf("feature: join on %q matched zero rows (%d geometry, %d attribute)", key, geo.Len(), attrs.NumRows())
	}

	var warnings []string
	if report.GeometryOnly > 0 {
		warnings = append(warnings, fmt.Sprintf("join dropped %d geometry rows with no attribute match on %q", report.GeometryOnly, key))
	}
	if report.AttributeOnly > 0 && policy == JoinInner {
		warnings = append(warnings, fmt.Sprintf("join dropped %d attribute rows with no geometry match on %q", report.AttributeOnly, key))
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	subset, err := geo.Subset(matchedIDs)
	if err != nil {
		return nil, err
	}

	t := &Table{
		geo:      subset,
		colIdx:   make(map[string]int),
		data:     make([][]float64, len(matchedIDs)),
		Report:   report,
		Warnings: warnings,
	}
	for i := range t.data {
		t.data[i] = []float64{}
	}

	// Raw numeric columns in attribute-table order.
	for _, c := range attrs.Columns() {
		vals, ok := colVals[c]
		if !ok {
			continue
		}
		col := make([]float64, len(matchedAttr))
		for i, row := range matchedAttr {
			col[i] = vals[row]
		}
		t.addColumn(c, col)
	}

	// Derived rate columns.
	for _, rate := range spec.Rates {
		if err := t.derive(rate); err != nil {
			return nil, err
		}
	}

	// Restrict to the retained set when one is declared.
	if len(spec.Keep) > 0 {
		if err := t.restrict(spec.Keep); err != nil {
			return nil, err
		}
	}

	log.Info("feature table built",
		zap.Int("regions", t.Len()),
		zap.Int("columns", len(t.columns)),
		zap.Int("geometry_only", report.GeometryOnly),
		zap.Int("attribute_only", report.AttributeOnly),
	)

	return t, nil
}

// derive appends a rate column computed from two existing columns.
func (t *Table) derive(rate RateSpec) error {
	count, ok := t.colIdx[rate.Count]
	if !ok {
		return eris.Errorf("feature: rate %q references unknown count column %q", rate.Name, rate.Count)
	}
	per, ok := t.colIdx[rate.Per]
	if !ok {
		return eris.Errorf("feature: rate %q references unknown denominator column %q", rate.Name, rate.Per)
	}
	if _, exists := t.colIdx[rate.Name]; exists {
		return eris.Errorf("feature: rate %q would overwrite an existing column", rate.Name)
	}

	col := make([]float64, t.Len())
	for i := range col {
		denom := t.data[i][per]
		if denom == 0 {
			return eris.Errorf("feature: rate %q: region %q has zero %s", rate.Name, t.geo.Regions[i].ID, rate.Per)
		}
		col[i] = t.data[i][count] / denom * rate.Scale
	}
	t.addColumn(rate.Name, col)
	return nil
}

// restrict drops every column not in keep, preserving keep order.
func (t *Table) restrict(keep []string) error {
	newIdx := make(map[string]int, len(keep))
	newData := make([][]float64, t.Len())
	for i := range newData {
		newData[i] = make([]float64, 0, len(keep))
	}
	for _, c := range keep {
		idx, ok := t.colIdx[c]
		if !ok {
			return eris.Errorf("feature: keep references unknown column %q", c)
		}
		if _, dup := newIdx[c]; dup {
			return eris.Errorf("feature: keep lists column %q twice", c)
		}
		newIdx[c] = len(newIdx)
		for i := range newData {
			newData[i] = append(newData[i], t.data[i][idx])
		}
	}
	t.columns = append([]string(nil), keep...)
	t.colIdx = newIdx
	t.data = newData
	return nil
}

func (t *Table) addColumn(name string, vals []float64) {
	t.colIdx[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for i := range t.data {
		t.data[i] = append(t.data[i], vals[i])
	}
}

// Len returns the number of regions (rows).
func (t *Table) Len() int { return len(t.data) }

// Columns returns the column names in order.
func (t *Table) Columns() []string { return t.columns }

// IDs returns region ids in row order.
func (t *Table) IDs() []string { return t.geo.IDs() }

// Geometry returns the joined region table, aligned with the rows.
func (t *Table) Geometry() *geodata.Table { return t.geo }

// Column returns the values of a column in row order.
func (t *Table) Column(name string) ([]float64, error) {
	idx, ok := t.colIdx[name]
	if !ok {
		return nil, eris.Errorf("feature: no column %q", name)
	}
	col := make([]float64, t.Len())
	for i := range t.data {
		col[i] = t.data[i][idx]
	}
	return col, nil
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []float64 { return t.data[i] }
