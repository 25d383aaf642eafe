package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

func ptr(v float64) *float64 { return &v }

func sampleJob() *model.PrintJob {
	return &model.PrintJob{
		ID:              "job-1",
		SourceReference: "1023",
		TableNumber:     "5",
		WaiterName:      "Ana",
		Items: []model.LineItem{
			{Name: "Salad", Quantity: 2, Notes: "no onion"},
			{Name: "Lemonade", Quantity: 1, UnitPrice: ptr(3.5)},
		},
		Total:      ptr(15),
		ReceivedAt: time.Date(2026, 3, 14, 12, 30, 5, 0, time.UTC),
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	names := make([]string, 0)
	for _, info := range c.List() {
		names = append(names, info.Name)
		assert.NotEmpty(t, info.Title, info.Name)
		assert.NotEmpty(t, info.Description, info.Name)
	}
	assert.Equal(t, []string{"standard", "simple", "vegetarian", "invoice", "delivery", "bar"}, names)
	assert.Equal(t, "standard", c.DefaultName())
}

func TestRender_StandardExample(t *testing.T) {
	c := Default()
	ticket := c.Render("standard", sampleJob())

	assert.Equal(t, "job-1", ticket.JobID)
	assert.Equal(t, "standard", ticket.Template)
	assert.Equal(t, []string{
		"2x Salad",
		"  -> no onion",
		"1x Lemonade",
		"  $3.50",
	}, ticket.Body)
	assert.Contains(t, ticket.Header, "Comanda: #1023")
	assert.Contains(t, ticket.Header, "Mesa: 5")
	assert.Contains(t, ticket.Header, "Mesero: Ana")
	assert.Contains(t, ticket.Header, "Fecha: 14/03/2026")
	assert.Contains(t, ticket.Header, "Hora: 12:30:05")
	assert.Contains(t, ticket.Footer, "TOTAL: $15.00")
}

func TestRender_UnknownTemplateFallsBack(t *testing.T) {
	c := Default()
	job := sampleJob()

	assert.Equal(t, c.Render("standard", job), c.Render("does-not-exist", job))
	assert.Equal(t, c.Render("standard", job), c.Render("", job))
}

func TestRender_Deterministic(t *testing.T) {
	c := Default()
	for _, info := range c.List() {
		first := c.Render(info.Name, sampleJob())
		second := c.Render(info.Name, sampleJob())
		assert.Equal(t, first, second, info.Name)
	}
}

func TestRender_MissingValues(t *testing.T) {
	c := Default()
	job := &model.PrintJob{ID: "job-2"}

	ticket := c.Render("delivery", job)

	assert.Empty(t, ticket.Body)
	assert.Contains(t, ticket.Header, "Pedido: #N/A")
	assert.Contains(t, ticket.Header, "Cliente: N/A")
	assert.Contains(t, ticket.Header, "Fecha: N/A")
	assert.Contains(t, ticket.Footer, "Total: N/A")
	assert.Contains(t, ticket.Footer, "Delivery: N/A")
	assert.Contains(t, ticket.Footer, "Tiempo estimado: 30-45 min")
}

func TestRender_CurrencyTokens(t *testing.T) {
	c := Default()
	job := sampleJob()
	job.Subtotal = ptr(13.2745)
	job.Tax = ptr(1.716)
	job.Discount = ptr(0)

	ticket := c.Render("invoice", job)

	assert.Contains(t, ticket.Footer, "Subtotal: $13.27")
	assert.Contains(t, ticket.Footer, "IVA (13%): $1.72")
	assert.Contains(t, ticket.Footer, "Descuento: $0.00")
	assert.Contains(t, ticket.Footer, "Total: $15.00")
}

func TestRender_ItemOrderIsStable(t *testing.T) {
	c := Default()
	job := &model.PrintJob{
		Items: []model.LineItem{
			{Name: "A", Quantity: 1, Notes: "n1", UnitPrice: ptr(1)},
			{Name: "B", Quantity: 3, Notes: "   "},
			{Name: "C", Quantity: 2, UnitPrice: ptr(2.25)},
		},
	}

	ticket := c.Render("simple", job)

	assert.Equal(t, []string{
		"1x A",
		"  Notas: n1",
		"  $1.00",
		"3x B",
		"2x C",
		"  $2.25",
	}, ticket.Body)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: `
default: plain
templates:
  - name: plain
    header: ["#{id}"]
    footer: ["{total}"]
`,
		},
		{
			name: "missing default",
			yaml: `
templates:
  - name: plain
`,
			wantErr: `default template "standard" is not defined`,
		},
		{
			name: "duplicate",
			yaml: `
templates:
  - name: standard
  - name: standard
`,
			wantErr: "defined twice",
		},
		{
			name:    "unnamed",
			yaml:    "templates:\n  - title: x\n",
			wantErr: "has no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tpl, err := c.Lookup("plain")
			require.NoError(t, err)
			assert.Equal(t, "{quantity}x {name}", tpl.ItemFormat.Product)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Default().Lookup("nope")

	var tplErr *model.TemplateError
	require.ErrorAs(t, err, &tplErr)
	assert.Equal(t, "nope", tplErr.Name)
	assert.ErrorIs(t, err, model.ErrUnknownTemplate)
}
