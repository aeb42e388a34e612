package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ahrav/go-consensus/internal/domain"
)

func approxTable(group string) domain.ScoreTable {
	return domain.ScoreTable{
		Group:  group,
		Method: "pl",
		NLists: 4,
		Rows: []domain.ScoreRow{
			{Item: "acme.com", Worth: 0.6, ApproxCI: 0.30990321069650041, NLists: 4},
			{Item: "bravo.com", Worth: 0.4, ApproxCI: 0.30990321069650041, NLists: 4},
		},
	}
}

func bootTable() domain.ScoreTable {
	return domain.ScoreTable{
		Group:  "ALL",
		Method: "bt",
		NLists: 10,
		Rows: []domain.ScoreRow{
			{Item: "acme.com", Worth: 0.75, Interval: &domain.ConfidenceInterval{Lo: 0.5, Hi: 0.9}, StdErr: 0.1, NLists: 10},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	tests := []struct {
		name  string
		table domain.ScoreTable
		want  string
	}{
		{
			name:  "approximate interval",
			table: approxTable("ALL"),
			want: "brand,worth,approx_ci_95,n_lists\n" +
				"acme.com,0.600000,0.309903,4\n" +
				"bravo.com,0.400000,0.309903,4\n",
		},
		{
			name:  "bootstrap interval",
			table: bootTable(),
			want: "brand,worth,worth_lo,worth_hi,worth_se,n_lists\n" +
				"acme.com,0.750000,0.500000,0.900000,0.100000,10\n",
		},
		{
			name:  "empty table",
			table: domain.ScoreTable{Group: "ALL"},
			want:  "brand,worth,approx_ci_95,n_lists\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCSV(&buf, tt.table))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"en-US", "en-US"},
		{"running shoes", "running_shoes"},
		{"a/b\\c", "a_b_c"},
		{"Café  Brands", "Caf_Brands"},
		{"", "_"},
		{"..", "_"},
		{"v1.2_x", "v1.2_x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.in))
		})
	}
}

func TestWrite_GroupedCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	tables := []domain.ScoreTable{approxTable("en-US"), approxTable("running shoes")}

	paths, err := Write(nil, dir, FormatCSV, true, tables)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "en-US.csv"),
		filepath.Join(dir, "running_shoes.csv"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "acme.com,0.600000,0.309903,4")
}

func TestWrite_GroupedCSVNameCollisions(t *testing.T) {
	dir := t.TempDir()
	slash := approxTable("en/US")
	slash.Rows = slash.Rows[:1]
	tables := []domain.ScoreTable{approxTable("en US"), slash, approxTable("EN_US")}

	paths, err := Write(nil, dir, FormatCSV, true, tables)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "en_US.csv"),
		filepath.Join(dir, "en_US_2.csv"),
		filepath.Join(dir, "EN_US_3.csv"),
	}, paths)

	first, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	second, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(first), "bravo.com")
	assert.NotContains(t, string(second), "bravo.com", "second group kept its own file")
}

func TestWrite_SingleCSV(t *testing.T) {
	var buf bytes.Buffer
	paths, err := Write(&buf, "-", FormatCSV, false, []domain.ScoreTable{approxTable("ALL")})
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Contains(t, buf.String(), "brand,worth")

	path := filepath.Join(t.TempDir(), "nested", "scores.csv")
	paths, err = Write(nil, path, "", false, []domain.ScoreTable{approxTable("ALL")})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
	assert.FileExists(t, path)

	_, err = Write(&buf, "-", FormatCSV, false, []domain.ScoreTable{approxTable("a"), approxTable("b")})
	assert.Error(t, err)
}

func TestWrite_Errors(t *testing.T) {
	_, err := Write(nil, "-", FormatXLSX, false, []domain.ScoreTable{approxTable("ALL")})
	assert.Error(t, err)

	_, err = Write(nil, "x", "parquet", false, nil)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.xlsx")
	tables := []domain.ScoreTable{approxTable("en/US"), approxTable("en?US"), bootTable()}
	require.NoError(t, WriteXLSX(path, tables))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"en_US", "en_US_2", "ALL"}, f.GetSheetList())

	rows, err := f.GetRows("en_US")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"brand", "worth", "approx_ci_95", "n_lists"}, rows[0])
	assert.Equal(t, "acme.com", rows[1][0])
	assert.Equal(t, "4", rows[1][3])

	rows, err = f.GetRows("ALL")
	require.NoError(t, err)
	assert.Equal(t, bootstrapHeader, rows[0])
	assert.Equal(t, "0.75", rows[1][1])
}

func TestSheetName_Truncates(t *testing.T) {
	used := map[string]bool{}
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	first := sheetName(long, used)
	second := sheetName(long, used)
	assert.Len(t, first, 31)
	assert.Len(t, second, 31)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "_2", second[len(second)-2:])
}
