package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/local/tipificador/internal/pdfengine"
)

func TestNormalizeNit(t *testing.T) {
	assert.Equal(t, "123456789", NormalizeNit("123.456.789"))
	assert.Equal(t, "123456789", NormalizeNit("123 456 789-7"))
	assert.Equal(t, "", NormalizeNit("sin digitos"))
}

func TestNormalizeInvoiceCode(t *testing.T) {
	assert.Equal(t, "OCFE12345", NormalizeInvoiceCode("12345"))
	assert.Equal(t, "ABC123", NormalizeInvoiceCode("abc 123"))
	assert.Equal(t, "", NormalizeInvoiceCode("NIT123456"), "rejected prefixes never normalize to a code")
	assert.Equal(t, "", NormalizeInvoiceCode("CUFE98765"))
	assert.Equal(t, "", NormalizeInvoiceCode(""))
}

func TestExtract_OverridesWinOutright(t *testing.T) {
	nit, code := Extract(nil, "123.456.789", "ocfe-1")
	assert.Equal(t, "123456789", nit)
	assert.Equal(t, "", code, "a malformed ocfe override normalizes to empty rather than guessing")
}

func TestExtract_PositionalSearchPrefersFevPage(t *testing.T) {
	pages := []Page{
		{
			Text: "pagina de otra categoria",
			Blocks: []pdfengine.TextBlock{
				{X: 10, Y: 10, Text: "NIT: 999.999.999"},
			},
		},
		{
			Text: "FACTURA ELECTRONICA DE VENTA",
			Blocks: []pdfengine.TextBlock{
				{X: 10, Y: 20, Text: "NIT: 123.456.789"},
				{X: 10, Y: 800, Text: "NIT: 555.555.555"}, // below header band, ignored
			},
		},
	}
	nit, _ := Extract(pages, "", "")
	assert.Equal(t, "123456789", nit, "fev-page header candidates must win over other pages")
}

func TestExtract_PositionalSearchUsesPageHeightForHeaderBand(t *testing.T) {
	pages := []Page{
		{
			Text:   "FACTURA ELECTRONICA DE VENTA",
			Height: 1000,
			Blocks: []pdfengine.TextBlock{
				{X: 10, Y: 0, Text: "FACTURA ELECTRONICA DE VENTA"},
				{X: 10, Y: 300, Text: "NIT: 123.456.789"}, // inside the top 40% of a 1000pt page, below the top 40% of the 0..600 block extent
				{X: 10, Y: 450, Text: "NIT: 555.555.555"}, // outside the top 40% of a 1000pt page
				{X: 10, Y: 600, Text: "Firma autorizada"},
			},
		},
	}
	nit, _ := Extract(pages, "", "")
	assert.Equal(t, "123456789", nit, "the header band is measured from page height, not block extent")
}

func TestExtract_TextFallbackWindow(t *testing.T) {
	pages := []Page{
		{Text: "texto de relleno sin relacion " + "FACTURA ELECTRONICA DE VENTA" + " NIT: 111.222.333 OCFE 445566"},
	}
	nit, code := Extract(pages, "", "")
	assert.Equal(t, "111222333", nit)
	assert.Equal(t, "OCFE445566", code)
}

func TestExtract_NoMatchReturnsEmpty(t *testing.T) {
	pages := []Page{{Text: "nada relevante en esta pagina"}}
	nit, code := Extract(pages, "", "")
	assert.Equal(t, "", nit)
	assert.Equal(t, "", code)
}
