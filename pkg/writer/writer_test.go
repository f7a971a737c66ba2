package writer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/errors"
	"github.com/datamill-io/syncmill/pkg/models"
	"github.com/datamill-io/syncmill/pkg/schema"
	"github.com/datamill-io/syncmill/pkg/testutil"
	"github.com/datamill-io/syncmill/pkg/writer"
)

func projectJob() config.JobConfig {
	return config.JobConfig{
		Name:          "projects",
		Table:         "tracker_projects",
		IdentityField: "id",
		KeyColumn:     "id",
		Columns: []config.StaticColumn{
			{Name: "title", Field: "title", Type: "text"},
			{Name: "updated_date", Field: "updatedDate", Type: "datetime"},
		},
	}
}

func commentJob() config.JobConfig {
	return config.JobConfig{
		Name:          "comments",
		Table:         "tracker_comments",
		IdentityField: "id",
		KeyColumn:     "id",
		Columns:       []config.StaticColumn{{Name: "body", Field: "text", Type: "text"}},
		Parents: []config.ParentRef{
			{Field: "taskId", Table: "tracker_tasks", Column: "task_id", Key: "id"},
			{Field: "folderId", Table: "projects_active", Column: "active_project_id", Key: "id"},
			{Field: "folderId", Table: "projects_archived", Column: "archived_project_id", Key: "id"},
			{Field: "folderId", Table: "projects_completed", Column: "completed_project_id", Key: "id"},
		},
	}
}

func TestWriteUpsertIsIdempotent(t *testing.T) {
	st := testutil.NewMemoryStore()
	w := writer.NewWriter(st, projectJob())
	mapping := schema.BuildMapping(projectJob(), []models.FieldDescriptor{
		{ID: "cf7", Title: "Region", Type: "DropDown"},
		{ID: "cf8", Title: "Tags", Type: "Multiple"},
	})

	rec := models.Record{
		"id":          "P1",
		"title":       "Hangar",
		"updatedDate": "2026-03-01T10:00:00Z",
		"cf7":         "East",
		"cf8":         map[string]interface{}{"z": "last", "a": "first"},
	}

	require.NoError(t, w.Write(context.Background(), mapping, rec))
	first, ok := st.Row("tracker_projects", "P1")
	require.True(t, ok)

	require.NoError(t, w.Write(context.Background(), mapping, rec))
	second, _ := st.Row("tracker_projects", "P1")
	assert.Equal(t, first, second, "re-upserting unchanged content must change nothing")
	assert.Equal(t, 1, st.RowCount("tracker_projects"))

	// one changed field updates only its own column
	rec["cf7"] = "West"
	require.NoError(t, w.Write(context.Background(), mapping, rec))
	third, _ := st.Row("tracker_projects", "P1")
	assert.Equal(t, "West", third["Region"])
	delete(first, "Region")
	delete(third, "Region")
	assert.Equal(t, first, third)
}

func TestBuildRowMapsDynamicFieldScenario(t *testing.T) {
	st := testutil.NewMemoryStore()
	job := projectJob()
	w := writer.NewWriter(st, job)
	mapping := schema.BuildMapping(job, []models.FieldDescriptor{
		{ID: "cf7", Title: "Region", Type: "DropDown"},
	})

	row, err := w.BuildRow(context.Background(), mapping, models.Record{"id": "P2", "cf7": "East"})
	require.NoError(t, err)

	values := make(map[string]interface{}, len(row.Columns))
	for i, c := range row.Columns {
		values[c] = row.Values[i]
	}
	assert.Equal(t, "P2", values["id"])
	assert.Equal(t, "East", values["Region"])
	assert.Nil(t, values["title"])
}

func TestBuildRowRejectsRecordWithoutIdentity(t *testing.T) {
	w := writer.NewWriter(testutil.NewMemoryStore(), projectJob())
	mapping := schema.BuildMapping(projectJob(), nil)

	_, err := w.BuildRow(context.Background(), mapping, models.Record{"title": "orphan"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
	assert.True(t, errors.IsRecordLevel(err))
}

func TestParentResolutionPrefersTaskOverProject(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.Seed("tracker_tasks", "id", "T1", nil)
	st.Seed("projects_active", "id", "F1", nil)

	w := writer.NewWriter(st, commentJob())
	mapping := schema.BuildMapping(commentJob(), nil)

	row, err := w.BuildRow(context.Background(), mapping, models.Record{
		"id": "C1", "taskId": "T1", "folderId": "F1", "text": "hello",
	})
	require.NoError(t, err)

	values := rowMap(row)
	assert.Equal(t, "T1", values["task_id"])
	assert.Nil(t, values["active_project_id"])
	assert.Nil(t, values["archived_project_id"])
	assert.Nil(t, values["completed_project_id"])
}

func TestParentResolutionFindsArchivedProject(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.Seed("projects_archived", "id", "F9", nil)

	w := writer.NewWriter(st, commentJob())
	mapping := schema.BuildMapping(commentJob(), nil)

	row, err := w.BuildRow(context.Background(), mapping, models.Record{
		"id": "C2", "folderId": "F9", "text": "archived note",
	})
	require.NoError(t, err)

	values := rowMap(row)
	assert.Nil(t, values["task_id"])
	assert.Nil(t, values["active_project_id"])
	assert.Equal(t, "F9", values["archived_project_id"])
	assert.Nil(t, values["completed_project_id"])
}

func TestParentResolutionRejectsDanglingReference(t *testing.T) {
	st := testutil.NewMemoryStore()
	w := writer.NewWriter(st, commentJob())
	mapping := schema.BuildMapping(commentJob(), nil)

	_, err := w.BuildRow(context.Background(), mapping, models.Record{
		"id": "C3", "folderId": "NOWHERE", "text": "dangling",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeReference))

	_, err = w.BuildRow(context.Background(), mapping, models.Record{
		"id": "C4", "text": "no parent at all",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeReference))
	assert.Equal(t, 0, st.RowCount("tracker_comments"))
}

func TestWritePresenceColumnIsAlwaysSet(t *testing.T) {
	st := testutil.NewMemoryStore()
	job := config.JobConfig{
		Name:           "operations",
		Table:          "planner_operations",
		IdentityField:  "id",
		KeyColumn:      "id",
		Pagination:     config.PaginationOffset,
		PresenceColumn: "present_remotely",
	}
	w := writer.NewWriter(st, job)
	mapping := schema.BuildMapping(job, nil)

	require.NoError(t, w.Write(context.Background(), mapping, models.Record{"id": "OP1"}))
	row, _ := st.Row("planner_operations", "OP1")
	assert.Equal(t, 1, row["present_remotely"])

	require.NoError(t, st.ResetFlag(context.Background(), "planner_operations", "present_remotely"))
	row, _ = st.Row("planner_operations", "OP1")
	assert.Equal(t, 0, row["present_remotely"])
}

func rowMap(row *models.UpsertRow) map[string]interface{} {
	out := make(map[string]interface{}, len(row.Columns))
	for i, c := range row.Columns {
		out[c] = row.Values[i]
	}
	return out
}
