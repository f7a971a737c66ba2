package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/models"
	"github.com/datamill-io/syncmill/pkg/schema"
	"github.com/datamill-io/syncmill/pkg/testutil"
)

func TestSanitizeStripsUnsafeCharacters(t *testing.T) {
	cases := map[string]string{
		"Region":         "Region",
		"Cost!!":         "Cost",
		"Prix (€ / h)":   "Prix_h",
		"  Due  Date  ":  "Due_Date",
		"a__b___c":       "a_b_c",
		"___":            "field",
		"Temps réel (h)": "Temps_r_el_h",
	}
	for title, want := range cases {
		assert.Equal(t, want, schema.Sanitize(title), "title %q", title)
	}
}

func TestResolveTypeUsesFixedTable(t *testing.T) {
	assert.Equal(t, schema.TypeDecimal, schema.ResolveType("Numeric"))
	assert.Equal(t, schema.TypeDecimal, schema.ResolveType("Percentage"))
	assert.Equal(t, schema.TypeDecimal, schema.ResolveType("Currency"))
	assert.Equal(t, schema.TypeDatetime, schema.ResolveType("Date"))
	assert.Equal(t, schema.TypeBoolean, schema.ResolveType("Checkbox"))
	assert.Equal(t, schema.TypeText, schema.ResolveType("DropDown"))
	assert.Equal(t, schema.TypeText, schema.ResolveType("something-new"))
}

func TestBuildMappingSuffixesCollidingNames(t *testing.T) {
	job := config.JobConfig{Name: "projects", KeyColumn: "id"}
	fields := []models.FieldDescriptor{
		{ID: "cf1", Title: "Cost", Type: "Numeric"},
		{ID: "cf2", Title: "Cost!!", Type: "Numeric"},
	}

	m := schema.BuildMapping(job, fields)
	require.Len(t, m.Columns, 2)

	first, ok := m.Lookup("cf1")
	require.True(t, ok)
	second, ok := m.Lookup("cf2")
	require.True(t, ok)

	assert.Equal(t, "Cost", first.Name)
	assert.Equal(t, "Cost_cf2", second.Name)
	assert.NotEqual(t, first.Name, second.Name)
}

func TestBuildMappingReservesStaticAndKeyColumns(t *testing.T) {
	job := config.JobConfig{
		Name:      "projects",
		KeyColumn: "id",
		Columns:   []config.StaticColumn{{Name: "title", Field: "title", Type: "text"}},
	}
	fields := []models.FieldDescriptor{
		{ID: "cf9", Title: "Title", Type: "DropDown"},
		{ID: "cf10", Title: "Id", Type: "DropDown"},
	}

	m := schema.BuildMapping(job, fields)
	titleCol, _ := m.Lookup("cf9")
	idCol, _ := m.Lookup("cf10")
	assert.Equal(t, "Title_cf9", titleCol.Name)
	assert.Equal(t, "Id_cf10", idCol.Name)
}

func TestReconcileCreatesTableOnFirstRun(t *testing.T) {
	st := testutil.NewMemoryStore()
	sync := schema.NewSynchronizer(st)
	job := config.JobConfig{
		Name:      "projects",
		Table:     "tracker_projects",
		KeyColumn: "id",
		Columns:   []config.StaticColumn{{Name: "title", Field: "title", Type: "text"}},
	}
	fields := []models.FieldDescriptor{{ID: "cf7", Title: "Region", Type: "DropDown"}}

	m, err := sync.Reconcile(context.Background(), job, fields)
	require.NoError(t, err)

	cols, err := st.TableColumns(context.Background(), "tracker_projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "Region"}, cols)

	region, ok := m.Lookup("cf7")
	require.True(t, ok)
	assert.Equal(t, "Region", region.Name)
	assert.Equal(t, schema.TypeText, region.Type)
}

func TestReconcileEvolutionIsAdditive(t *testing.T) {
	st := testutil.NewMemoryStore()
	sync := schema.NewSynchronizer(st)
	job := config.JobConfig{Name: "projects", Table: "tracker_projects", KeyColumn: "id"}
	fields := []models.FieldDescriptor{
		{ID: "cf1", Title: "Region", Type: "DropDown"},
		{ID: "cf2", Title: "Budget", Type: "Currency"},
	}

	_, err := sync.Reconcile(context.Background(), job, fields)
	require.NoError(t, err)
	before, _ := st.TableColumns(context.Background(), "tracker_projects")

	// second pass with one new descriptor adds exactly one column
	fields = append(fields, models.FieldDescriptor{ID: "cf3", Title: "Owner", Type: "DropDown"})
	_, err = sync.Reconcile(context.Background(), job, fields)
	require.NoError(t, err)

	after, _ := st.TableColumns(context.Background(), "tracker_projects")
	require.Len(t, after, len(before)+1)
	assert.Equal(t, before, after[:len(before)], "existing columns untouched")
	assert.Equal(t, "Owner", after[len(after)-1])

	// re-ordering descriptors changes nothing
	fields[0], fields[1] = fields[1], fields[0]
	_, err = sync.Reconcile(context.Background(), job, fields)
	require.NoError(t, err)
	again, _ := st.TableColumns(context.Background(), "tracker_projects")
	assert.Equal(t, after, again)
}
