package export

import (
	"fmt"
	"strconv"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// ClientsTable flattens clients for export.
func ClientsTable(clients []*models.Client) Table {
	t := Table{
		Name: "Clients",
		Headers: []string{
			"ID", "Company", "Country", "Contact", "Email", "Phone",
			"Website", "Status", "Score", "Classification",
		},
	}
	for _, c := range clients {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(c.ID),
			c.CompanyName,
			deref(c.Country),
			deref(c.ContactPerson),
			deref(c.Email),
			deref(c.Phone),
			deref(c.Website),
			c.Status,
			strconv.Itoa(c.SeriousnessScore),
			string(c.Classification),
		})
	}
	return t
}

// DealsTable flattens deals for export.
func DealsTable(deals []*models.Deal) Table {
	t := Table{
		Name: "Deals",
		Headers: []string{
			"ID", "Client", "Name", "Product", "Stage", "Value", "Currency",
			"Probability", "Expected Close",
		},
	}
	for _, d := range deals {
		expected := ""
		if d.ExpectedCloseDate != nil {
			expected = d.ExpectedCloseDate.Format(models.UserDateLayout)
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(d.ID),
			strconv.Itoa(d.ClientID),
			d.Name,
			d.ProductName,
			string(d.Stage),
			fmt.Sprintf("%.2f", d.Value),
			d.Currency,
			fmt.Sprintf("%.0f%%", d.Probability*100),
			expected,
		})
	}
	return t
}

// LeadsTable flattens lead candidates for export.
func LeadsTable(leads []*models.LeadCandidate) Table {
	t := Table{
		Name: "Leads",
		Headers: []string{
			"Company", "Email", "Phone", "Website", "Country", "Score", "Source",
		},
	}
	for _, l := range leads {
		t.Rows = append(t.Rows, []string{
			l.CompanyName, l.Email, l.Phone, l.Website, l.Country,
			strconv.Itoa(l.QualityScore), l.Source,
		})
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
