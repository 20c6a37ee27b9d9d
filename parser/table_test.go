package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	country, dataset := ParseHeader("Canada, Exposure to risk (cohort 1x1), \tLast modified: 03 Apr 2023")
	assert.Equal(t, "Canada", country)
	assert.Equal(t, "Exposure to risk", dataset)

	country, dataset = ParseHeader("just one token")
	assert.Equal(t, "", country)
	assert.Equal(t, "", dataset)
}

func TestSexFromFilename(t *testing.T) {
	assert.Equal(t, "Female", SexFromFilename("fltper_1x1.txt"))
	assert.Equal(t, "Male", SexFromFilename("mltper_1x1.txt"))
	assert.Equal(t, "Both sexes", SexFromFilename("bltper_1x1.txt"))
	assert.Equal(t, "", SexFromFilename("Population.txt"))
}

func TestParseTable_LifeTable(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year          Age         mx       qx       lx\n" +
		"  1921           0       0.08810  0.08354   100000\n" +
		"  1921           1       0.01021  0.01016    91646\n"

	data, skips := ParseTable("fltper_1x1.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 6)

	// Second cell of the first row: qx at unchanged scale.
	qx := data[1]
	assert.ElementsMatch(t, []string{"Canada", "Life tables", "Probability of Death", "Female"}, qx.Tags)
	assert.Equal(t, 1921, qx.Date.Year())
	assert.Equal(t, 1, int(qx.Date.Month()))
	assert.Equal(t, 1, qx.Date.Day())
	assert.Equal(t, 0, qx.Age)
	assert.True(t, qx.Value.Equal(decimal.RequireFromString("0.08354")), "got %s", qx.Value)

	// lx is per-100k and gets shifted to probability scale.
	lx := data[2]
	assert.ElementsMatch(t, []string{"Canada", "Life tables", "Survivorship", "Female"}, lx.Tags)
	assert.True(t, lx.Value.Equal(decimal.RequireFromString("1")), "got %s", lx.Value)

	lx = data[5]
	assert.Equal(t, 1, lx.Age)
	assert.True(t, lx.Value.Equal(decimal.RequireFromString("0.91646")), "got %s", lx.Value)
}

func TestParseTable_PopulationColumns(t *testing.T) {
	table := "Canada, Population size (1-year), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age      Female        Male       Total\n" +
		"  1947     0    74629.57    78684.98   153314.55\n"

	data, skips := ParseTable("Population.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 3)

	assert.ElementsMatch(t, []string{"Canada", "Population size", "Female"}, data[0].Tags)
	assert.True(t, data[0].Value.Equal(decimal.RequireFromString("74629.57")))
	assert.Equal(t, "74629.57", data[0].Value.String())

	assert.ElementsMatch(t, []string{"Canada", "Population size", "Male"}, data[1].Tags)
	assert.True(t, data[1].Value.Equal(decimal.RequireFromString("78684.98")))

	assert.ElementsMatch(t, []string{"Canada", "Population size", "Both sexes"}, data[2].Tags)
	assert.True(t, data[2].Value.Equal(decimal.RequireFromString("153314.55")))

	for _, d := range data {
		assert.Equal(t, 0, d.Age)
		assert.Equal(t, 1947, d.Date.Year())
	}
}

func TestParseTable_SexColumnOverridesFilename(t *testing.T) {
	table := "Canada, Population size (1-year), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age   Male\n" +
		"  1947     0   78684.98\n"

	// The column named Male wins over the blt filename marker for its cell.
	data, skips := ParseTable("bltper_1x1.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 1)
	assert.Contains(t, data[0].Tags, "Male")
	assert.NotContains(t, data[0].Tags, "Both sexes")
}

func TestParseTable_FilenameSexWhenNoSexColumn(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age   qx\n" +
		"  1947     0   0.05\n"

	data, skips := ParseTable("bltper_1x1.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 1)
	assert.Contains(t, data[0].Tags, "Both sexes")
}

func TestParseTable_OpenTopAgeBracket(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age   qx\n" +
		"  1947  110+   1.00000\n"

	data, skips := ParseTable("fltper_1x1.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 1)
	assert.Equal(t, 110, data[0].Age)
}

func TestParseTable_MissingAgeColumn(t *testing.T) {
	table := "Canada, Life expectancy at birth (period), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   ex\n" +
		"  1947   66.31\n"

	data, skips := ParseTable("e0per.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 1)
	assert.Equal(t, 0, data[0].Age)
	assert.ElementsMatch(t, []string{"Canada", "Life expectancy at birth", "Life Expectancy"}, data[0].Tags)
}

func TestParseTable_DotCellProducesNothing(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age   mx       qx\n" +
		"  1947     0    .   0.05\n"

	data, skips := ParseTable("fltper_1x1.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 1)
	assert.Contains(t, data[0].Tags, "Probability of Death")
}

func TestParseTable_BadRowDoesNotAbortFile(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age   qx\n" +
		"  1947     0   0.05\n" +
		"  1948     0   not-a-number\n" +
		"  1949     0   0.06\n"

	data, skips := ParseTable("fltper_1x1.txt", table)
	require.Len(t, skips, 1)
	assert.Equal(t, 5, skips[0].Line)
	assert.Contains(t, skips[0].Reason, "not-a-number")

	require.Len(t, data, 2)
	assert.Equal(t, 1947, data[0].Date.Year())
	assert.Equal(t, 1949, data[1].Date.Year())
}

func TestParseTable_RaggedRowTolerated(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Year   Age   mx     qx\n" +
		"  1947     0   0.05\n"

	// The trailing qx cell is absent; only mx is produced.
	data, skips := ParseTable("fltper_1x1.txt", table)
	assert.Empty(t, skips)
	require.Len(t, data, 1)
	assert.Contains(t, data[0].Tags, "Central Death Rate")
}

func TestParseTable_RowWithoutYearSkipped(t *testing.T) {
	table := "Canada, Life tables (period 1x1), Last modified: 03 Apr 2023\n" +
		"\n" +
		"  Age   qx\n" +
		"  0     0.05\n"

	data, skips := ParseTable("fltper_1x1.txt", table)
	assert.Empty(t, data)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0].Reason, "Year")
}
