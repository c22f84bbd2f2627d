package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "FACTURA ELECTRONICA DE VENTA", Normalize("Factura Electrónica de Venta"))
	assert.Equal(t, "AUTORIZACION", Normalize("autorización"))
	assert.Equal(t, "", Normalize(""))
}

func TestClassify_OrderedRules(t *testing.T) {
	cases := []struct {
		name          string
		text          string
		allowCrcTable bool
		want          Category
	}{
		{"orden medica + decision -> OPF", "ORDEN MEDICA tomada por DECISION del comite", false, OPF},
		{"historia clinica -> HEV even with orden medica text absent", "HISTORIA CLINICA del paciente", false, HEV},
		{"orden medica alone -> OPF", "se adjunta ORDEN MEDICA del especialista", false, OPF},
		{"decision with table markers -> OPF", "DECISION tomada, ver MES INICIO y OBSERVACIONES", false, OPF},
		{"autorizacion servicios -> PDE", "AUTORIZACION SERVICIOS de salud", false, PDE},
		{"registro atencion domiciliaria -> CRC", "REGISTRO DE ATENCION DOMICILIARIA turno tarde", false, CRC},
		{"certificacion prestacion -> HEV", "CERTIFICACION PRESTACION DE SERVICIOS mensual", false, HEV},
		{"factura electronica de venta -> FEV", "FACTURA ELECTRONICA DE VENTA No 123", false, FEV},
		{"no match -> empty", "texto sin ninguna palabra clave relevante", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.text, tc.allowCrcTable))
		})
	}
}

func TestClassify_CrcTableHeuristic(t *testing.T) {
	richHeader := "SERVICIO PRESTADOR TURNO HORA NOMBRE TUTOR PACIENTE FIRMA CUIDADOR N° 12"
	assert.Equal(t, CRC, Classify(richHeader, true))
	assert.Equal(t, Category(""), Classify(richHeader, false), "table heuristic must be gated by allowCrcTable")

	withFechaCreacion := richHeader + " FECHA CREACION 01/01/2024"
	assert.Equal(t, Category(""), Classify(withFechaCreacion, true), "FECHA CREACION disqualifies the table hint")
}

func TestClassify_CrcKeywordCountFallback(t *testing.T) {
	text := "SERVICIO PRESTADOR TURNO HORARIO NOMBRE"
	assert.Equal(t, CRC, Classify(text, true))
}

func TestPropagate_StrongHitsWin(t *testing.T) {
	pages := []Page{
		{Global: 0, PdfIdx: 0, Text: "FACTURA ELECTRONICA DE VENTA"},
		{Global: 1, PdfIdx: 0, Text: "pagina sin texto reconocible"},
		{Global: 2, PdfIdx: 0, Text: "otra pagina sin texto reconocible"},
	}
	result := Propagate(pages)
	assert.Equal(t, FEV, result[0])
	assert.Equal(t, FEV, result[1], "sole propagatable category should cover unmatched pages in the same pdf")
	assert.Equal(t, FEV, result[2])
}

func TestPropagate_MixedStrongCategoriesDoNotPropagate(t *testing.T) {
	pages := []Page{
		{Global: 0, PdfIdx: 0, Text: "FACTURA ELECTRONICA DE VENTA"},
		{Global: 1, PdfIdx: 0, Text: "AUTORIZACION SERVICIOS"},
		{Global: 2, PdfIdx: 0, Text: "pagina sin texto reconocible"},
	}
	result := Propagate(pages)
	assert.Equal(t, FEV, result[0])
	assert.Equal(t, PDE, result[1])
	assert.Equal(t, HEV, result[2], "unmatched page defaults to HEV when no sole propagatable category exists")
}

func TestPropagate_IgnoresNonPropagatableStrongHitsWhenCounting(t *testing.T) {
	pages := []Page{
		{Global: 0, PdfIdx: 0, Text: "FACTURA ELECTRONICA DE VENTA"},
		{Global: 1, PdfIdx: 0, Text: "HISTORIA CLINICA del paciente"},
		{Global: 2, PdfIdx: 0, Text: "pagina sin texto reconocible"},
	}
	result := Propagate(pages)
	assert.Equal(t, FEV, result[0])
	assert.Equal(t, HEV, result[1], "a page's own strong match is kept, not overwritten")
	assert.Equal(t, FEV, result[2], "exactly one FEV/CRC/PDE hit propagates even with an HEV hit also present")
}

func TestPropagate_DefaultsToHEVAcrossDifferentPdfs(t *testing.T) {
	pages := []Page{
		{Global: 0, PdfIdx: 0, Text: "sin coincidencias"},
		{Global: 1, PdfIdx: 1, Text: "tampoco hay coincidencias aqui"},
	}
	result := Propagate(pages)
	assert.Equal(t, HEV, result[0])
	assert.Equal(t, HEV, result[1])
}
