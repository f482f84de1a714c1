package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"XLSX", FormatXLSX, false},
		{"  Pdf ", FormatPDF, false},
		{"doc", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, models.ErrValidation, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.csv")
	table := Table{
		Headers: []string{"Company", "Country"},
		Rows: [][]string{
			{"Acme Exports", "Germany"},
			{"Basmati, House", "India"},
		},
	}
	require.NoError(t, Export(table, FormatCSV, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Company,Country\nAcme Exports,Germany\n\"Basmati, House\",India\n", string(raw))
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.xlsx")
	table := Table{
		Name:    "Clients",
		Headers: []string{"Company", "Score"},
		Rows:    [][]string{{"Acme Exports", "72"}},
	}
	require.NoError(t, Export(table, FormatXLSX, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.NotContains(t, f.GetSheetList(), "Sheet1")
	got, err := f.GetCellValue("Clients", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Company", got)
	got, err = f.GetCellValue("Clients", "B2")
	require.NoError(t, err)
	assert.Equal(t, "72", got)
}

func TestExportPDFUnsupported(t *testing.T) {
	err := Export(Table{}, FormatPDF, filepath.Join(t.TempDir(), "out.pdf"))
	assert.ErrorIs(t, err, models.ErrPermanent)
}

func TestExportUnknownFormat(t *testing.T) {
	err := Export(Table{}, Format("doc"), filepath.Join(t.TempDir(), "out.doc"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestClientsTable(t *testing.T) {
	country := "Germany"
	email := "sales@acme-exports.com"
	table := ClientsTable([]*models.Client{
		{
			ID:               7,
			CompanyName:      "Acme Exports",
			Country:          &country,
			Email:            &email,
			Status:           "Active",
			SeriousnessScore: 72,
			Classification:   models.ClassificationSerious,
		},
		{ID: 8, CompanyName: "Mystery Co"},
	})

	assert.Equal(t, "Clients", table.Name)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"7", "Acme Exports", "Germany", "", "sales@acme-exports.com",
		"", "", "Active", "72", "Serious"}, table.Rows[0])
	// Nil optionals flatten to empty cells.
	assert.Equal(t, "", table.Rows[1][2])
	assert.Equal(t, "", table.Rows[1][4])
}

func TestDealsTable(t *testing.T) {
	expected := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	table := DealsTable([]*models.Deal{
		{
			ID: 3, ClientID: 7, Name: "Rice Q3", ProductName: "Basmati Rice",
			Stage: models.StageProposal, Value: 5000, Currency: "USD",
			Probability: 0.5, ExpectedCloseDate: &expected,
		},
		{ID: 4, ClientID: 7, Name: "Tea trial", Stage: models.StageLead, Probability: 0.1},
	})

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "5000.00", table.Rows[0][5])
	assert.Equal(t, "50%", table.Rows[0][7])
	assert.Equal(t, "01/07/2025", table.Rows[0][8])
	assert.Equal(t, "", table.Rows[1][8])
}

func TestLeadsTable(t *testing.T) {
	table := LeadsTable([]*models.LeadCandidate{
		{
			CompanyName: "Golden Grain", Email: "purchasing@goldengrain.ae",
			Country: "UAE", QualityScore: 85, Source: "https://goldengrain.ae",
		},
	})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Golden Grain", table.Rows[0][0])
	assert.Equal(t, "85", table.Rows[0][5])
}
