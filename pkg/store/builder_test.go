package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamill-io/syncmill/pkg/models"
)

func TestBuildUpsertEmitsParameterizedStatement(t *testing.T) {
	row := &models.UpsertRow{Key: "id"}
	row.Set("id", "P1")
	row.Set("title", "Hangar")
	row.Set("Region", "East")

	query, args := BuildUpsert("tracker_projects", row)

	assert.Equal(t,
		"INSERT INTO `tracker_projects` (`id`, `title`, `Region`) VALUES (?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE `title` = VALUES(`title`), `Region` = VALUES(`Region`)",
		query)
	assert.Equal(t, []interface{}{"P1", "Hangar", "East"}, args)
}

func TestBuildUpsertIsStableAcrossCalls(t *testing.T) {
	build := func() string {
		row := &models.UpsertRow{Key: "id"}
		row.Set("id", "P1")
		row.Set("a", 1)
		row.Set("b", 2)
		q, _ := BuildUpsert("t", row)
		return q
	}
	require.Equal(t, build(), build())
}

func TestBuildUpsertKeyOnlyRow(t *testing.T) {
	row := &models.UpsertRow{Key: "id"}
	row.Set("id", "X")

	query, args := BuildUpsert("t", row)
	assert.Equal(t, "INSERT INTO `t` (`id`) VALUES (?) ON DUPLICATE KEY UPDATE `id` = VALUES(`id`)", query)
	assert.Equal(t, []interface{}{"X"}, args)
}

func TestBuildCreateTablePinsPrimaryKey(t *testing.T) {
	ddl := BuildCreateTable("tracker_projects",
		ColumnDef{Name: "id", SQLType: "VARCHAR(64)"},
		[]ColumnDef{
			{Name: "title", SQLType: "TEXT"},
			{Name: "Budget", SQLType: "DECIMAL(20,4)"},
		})

	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS `tracker_projects` (`id` VARCHAR(64) NOT NULL, "+
			"`title` TEXT, `Budget` DECIMAL(20,4), PRIMARY KEY (`id`))",
		ddl)
}

func TestQuoteStripsBackticks(t *testing.T) {
	assert.Equal(t, "`weird`", quote("we`ird"))
}
