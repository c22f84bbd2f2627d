// Package classify assigns one of the five business categories to a page of
// extracted text using a deterministic ordered rule list, with a per-PDF
// propagation pass that smooths over mixed-quality scans.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Category is one of the five closed business tags.
type Category string

const (
	CRC Category = "CRC"
	FEV Category = "FEV"
	HEV Category = "HEV"
	OPF Category = "OPF"
	PDE Category = "PDE"
)

var crcHeaderKeywords = []string{
	"SERVICIO", "PRESTADOR", "TURNO", "HORA", "HORARIO", "NOMBRE",
	"TUTOR", "PACIENTE", "FIRMA", "CUIDADOR",
}

var numberingMarkers = []string{"N°", "NO.", "NRO"}

var dateRe = regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`)
var timeRe = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)

// Normalize strips combining accent marks (Unicode NFD, drop category Mn)
// and uppercases, matching how every rule pattern below is expressed.
func Normalize(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Classify applies the ordered rule list to text (already raw, not
// normalized) and returns a category or "" if nothing matched.
func Classify(text string, allowCrcTable bool) Category {
	n := Normalize(text)

	hasOrdenMedica := strings.Contains(n, "ORDEN MEDICA")
	hasDecision := strings.Contains(n, "DECISION")

	if hasOrdenMedica && hasDecision {
		return OPF
	}
	for _, hint := range []string{"REGISTRO DE ACTIVIDADES DE CUIDADO", "HISTORIA CLINICA", "TRABAJO SOCIAL"} {
		if strings.Contains(n, hint) {
			return HEV
		}
	}
	if hasOrdenMedica {
		return OPF
	}
	if hasDecision {
		for _, tbl := range []string{"MES INICIO", "MES", "DETALLES", "OBSERVACIONES"} {
			if strings.Contains(n, tbl) {
				return OPF
			}
		}
	}
	if strings.Contains(n, "AUTORIZACION SERVICIOS") {
		return PDE
	}
	if strings.Contains(n, "REGISTRO DE ATENCION DOMICILIARIA") {
		return CRC
	}
	for _, hint := range []string{"CERTIFICACION PRESTACION DE SERVICIOS", "CERTIFICACION DETALLE DE CARGOS"} {
		if strings.Contains(n, hint) {
			return HEV
		}
	}
	for _, hint := range []string{"FACTURA ELECTRONICA DE VENTA", "NOTA DE CREDITO ELECTRONICA", "DETALLE DE CARGOS", "FACTURA OCFE"} {
		if strings.Contains(n, hint) {
			return FEV
		}
	}

	if allowCrcTable && hasCrcTableHint(n) {
		return CRC
	}
	return ""
}

func hasCrcTableHint(n string) bool {
	if strings.Contains(n, "FECHA CREACION") {
		return false
	}

	hasNumbering := false
	for _, m := range numberingMarkers {
		if strings.Contains(n, m) {
			hasNumbering = true
			break
		}
	}
	hasTutorOrPaciente := strings.Contains(n, "TUTOR") || strings.Contains(n, "PACIENTE")
	hasHoraOrHorario := strings.Contains(n, "HORA") || strings.Contains(n, "HORARIO")
	hasCuidador := strings.Contains(n, "CUIDADOR")

	richHeader := strings.Contains(n, "SERVICIO") && strings.Contains(n, "PRESTADOR") &&
		strings.Contains(n, "TURNO") && hasHoraOrHorario && hasTutorOrPaciente &&
		strings.Contains(n, "FIRMA") && hasNumbering && hasCuidador
	if richHeader {
		return true
	}

	keywordCount := 0
	for _, kw := range crcHeaderKeywords {
		if strings.Contains(n, kw) {
			keywordCount++
		}
	}
	dateCount := len(dateRe.FindAllString(n, -1))
	timeCount := len(timeRe.FindAllString(n, -1))

	if keywordCount >= 5 {
		return true
	}
	if dateCount >= 2 && timeCount >= 2 && hasCuidador {
		return true
	}
	return false
}

// Page is one page's text, addressed by its source PDF and global index,
// used by Propagate to group strong hits per source document.
type Page struct {
	Global int
	PdfIdx int
	Text   string
}

// Propagate runs the two-pass, per-PDF propagation described in the
// component design: a first pass with table heuristics disabled to find
// strong hits, grouped by source PDF; a second pass with the heuristic
// conditionally enabled for PDFs that had a strong CRC hit, defaulting
// unclassified pages to HEV; and a final override step that, for any PDF
// whose strong hits are a single category drawn from {FEV, CRC, PDE},
// applies that category to every non-strong page in the PDF.
func Propagate(pages []Page) map[int]Category {
	strongByPdf := make(map[int]map[int]Category) // pdfIdx -> global -> category
	strong := make(map[int]Category)

	for _, p := range pages {
		if cat := Classify(p.Text, false); cat != "" {
			strong[p.Global] = cat
			if strongByPdf[p.PdfIdx] == nil {
				strongByPdf[p.PdfIdx] = make(map[int]Category)
			}
			strongByPdf[p.PdfIdx][p.Global] = cat
		}
	}

	pdfHasStrongCrc := make(map[int]bool)
	for pdfIdx, hits := range strongByPdf {
		for _, cat := range hits {
			if cat == CRC {
				pdfHasStrongCrc[pdfIdx] = true
				break
			}
		}
	}

	result := make(map[int]Category, len(pages))
	for _, p := range pages {
		if cat, ok := strong[p.Global]; ok {
			result[p.Global] = cat
			continue
		}
		cat := Classify(p.Text, pdfHasStrongCrc[p.PdfIdx])
		if cat == "" {
			cat = HEV
		}
		result[p.Global] = cat
	}

	for pdfIdx, hits := range strongByPdf {
		sole, ok := solePropagatable(hits)
		if !ok {
			continue
		}
		for _, p := range pages {
			if p.PdfIdx != pdfIdx {
				continue
			}
			if _, isStrong := hits[p.Global]; isStrong {
				continue
			}
			result[p.Global] = sole
		}
	}

	return result
}

// solePropagatable reports whether hits, filtered down to {FEV, CRC, PDE},
// contains exactly one distinct category. Other strong categories present
// in hits (e.g. HEV) don't count against the filtered set.
func solePropagatable(hits map[int]Category) (Category, bool) {
	seen := make(map[Category]bool)
	for _, cat := range hits {
		if cat == FEV || cat == CRC || cat == PDE {
			seen[cat] = true
		}
	}
	if len(seen) != 1 {
		return "", false
	}
	var only Category
	for cat := range seen {
		only = cat
	}
	return only, true
}
