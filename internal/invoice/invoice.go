// Package invoice extracts the taxpayer NIT and invoice code that name the
// output archive, searching the FEV page set positionally before falling
// back to a plain-text window search.
package invoice

import (
	"regexp"
	"sort"
	"strings"

	"github.com/local/tipificador/internal/classify"
	"github.com/local/tipificador/internal/pdfengine"
)

var (
	nitRe         = regexp.MustCompile(`\bNIT\b\s*[:\-]?\s*([0-9.,\s]{6,15}(?:\s*-\s*\d)?)`)
	ocfeRe        = regexp.MustCompile(`\bOCFE\s*(\d{3,})\b`)
	generalCodeRe = regexp.MustCompile(`\b([A-Z]{3,6})\s*(\d{3,})\b`)

	rejectedPrefixes = map[string]bool{"NIT": true, "CUFE": true, "CUDE": true}

	positionalInvoiceHints = []string{"FACTURA", "ELECTR", "VENTA", "N°", "NO.", "NRO", "CUFE", "BUFE"}
	fallbackInvoiceHints   = []string{"FACTURA", "ELECTR", "VENTA", "N°", "NO.", "NRO"}
)

// NormalizeNit uppercases, strips dots/commas/spaces, keeps only the
// portion before a hyphen if present, then retains only digits.
func NormalizeNit(s string) string {
	s = strings.ToUpper(s)
	s = strings.NewReplacer(".", "", ",", "", " ", "").Replace(s)
	if idx := strings.Index(s, "-"); idx >= 0 {
		s = s[:idx]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeInvoiceCode uppercases and strips spaces. Purely numeric input
// is synthesised into OCFE<digits>; otherwise it must match a 3-6 letter
// prefix followed by 3+ digits, with NIT/CUFE/CUDE rejected as prefixes.
func NormalizeInvoiceCode(s string) string {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return ""
	}
	if isAllDigits(s) {
		return "OCFE" + s
	}
	m := regexp.MustCompile(`^([A-Z]{3,6})(\d{3,})`).FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if rejectedPrefixes[m[1]] {
		return ""
	}
	return m[1] + m[2]
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// candidate is a located match with its position for header-band ranking.
type candidate struct {
	value string
	y, x  float64
	isFev bool
}

// Page is one FEV-set page's positioned blocks, rendered text, and page
// height in points, as needed by the positional search.
type Page struct {
	Text   string
	Blocks []pdfengine.TextBlock
	Height float64
}

// Extract finds NIT and invoice code across the FEV page set. Each non-empty
// override is normalized and used for its own value; the positional search,
// then the text fallback, run only for values that are still empty. Returns
// empty strings for values it cannot determine; callers decide whether that
// constitutes an Unresolved failure.
func Extract(pages []Page, nitOverride, ocfeOverride string) (nit string, invoiceCode string) {
	if nitOverride != "" {
		nit = NormalizeNit(nitOverride)
	}
	if ocfeOverride != "" {
		invoiceCode = NormalizeInvoiceCode(ocfeOverride)
	}
	if nit != "" && invoiceCode != "" {
		return nit, invoiceCode
	}

	posNit, posCode := positionalSearch(pages)
	if nit == "" {
		nit = posNit
	}
	if invoiceCode == "" {
		invoiceCode = posCode
	}
	if nit != "" && invoiceCode != "" {
		return nit, invoiceCode
	}

	fbNit, fbCode := textFallbackSearch(pages)
	if nit == "" {
		nit = fbNit
	}
	if invoiceCode == "" {
		invoiceCode = fbCode
	}
	return nit, invoiceCode
}

func pageClass(text string) string {
	n := classify.Normalize(text)
	if strings.Contains(n, "FACTURA ELECTRONICA DE VENTA") {
		return "fev"
	}
	if strings.Contains(n, "NOTA DE CREDITO ELECTRONICA") {
		return "nc"
	}
	return "other"
}

func positionalSearch(pages []Page) (nit string, code string) {
	var nitCandidates, codeCandidates []candidate

	for _, p := range pages {
		cls := pageClass(p.Text)
		isFev := cls == "fev"
		headerMaxY := headerBandBound(p.Blocks, p.Height)

		for _, blk := range p.Blocks {
			if blk.Y > headerMaxY {
				continue
			}
			blockUpper := strings.ToUpper(blk.Text)

			if m := nitRe.FindStringSubmatch(blockUpper); m != nil {
				nitCandidates = append(nitCandidates, candidate{value: m[1], y: blk.Y, x: blk.X, isFev: isFev})
			}
			if m := ocfeRe.FindStringSubmatch(blockUpper); m != nil {
				codeCandidates = append(codeCandidates, candidate{value: "OCFE" + m[1], y: blk.Y, x: blk.X, isFev: isFev})
				continue
			}
			if containsAny(blockUpper, positionalInvoiceHints) {
				if m := generalCodeRe.FindStringSubmatch(blockUpper); m != nil && !rejectedPrefixes[m[1]] {
					codeCandidates = append(codeCandidates, candidate{value: m[1] + m[2], y: blk.Y, x: blk.X, isFev: isFev})
				}
			}
		}
	}

	return pickBest(nitCandidates, NormalizeNit), pickBest(codeCandidates, NormalizeInvoiceCode)
}

// headerBandBound returns the y-coordinate bounding the top 40% of the page,
// measured from the page's own height. Falls back to the block extent when
// height is unknown (e.g. hand-built fixtures in tests).
func headerBandBound(blocks []pdfengine.TextBlock, pageHeight float64) float64 {
	if pageHeight > 0 {
		return pageHeight * 0.4
	}
	if len(blocks) == 0 {
		return 0
	}
	minY, maxY := blocks[0].Y, blocks[0].Y
	for _, b := range blocks {
		if b.Y < minY {
			minY = b.Y
		}
		if b.Y > maxY {
			maxY = b.Y
		}
	}
	return minY + (maxY-minY)*0.4
}

func pickBest(cands []candidate, normalize func(string) string) string {
	if len(cands) == 0 {
		return ""
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].isFev != cands[j].isFev {
			return cands[i].isFev
		}
		if cands[i].y != cands[j].y {
			return cands[i].y < cands[j].y
		}
		return cands[i].x < cands[j].x
	})
	return normalize(cands[0].value)
}

func textFallbackSearch(pages []Page) (nit string, code string) {
	var all strings.Builder
	for _, p := range pages {
		all.WriteString(p.Text)
		all.WriteString("\n")
	}
	full := strings.ToUpper(all.String())

	window := full
	if idx := strings.Index(full, "FACTURA ELECTRONICA DE VENTA"); idx >= 0 {
		start := idx - 200
		if start < 0 {
			start = 0
		}
		end := idx + 2000
		if end > len(full) {
			end = len(full)
		}
		window = full[start:end]
	}

	if m := nitRe.FindStringSubmatch(window); m != nil {
		nit = NormalizeNit(m[1])
	}

	if m := ocfeRe.FindStringSubmatch(window); m != nil {
		code = "OCFE" + m[1]
	} else if containsAny(window, fallbackInvoiceHints) {
		if m := generalCodeRe.FindStringSubmatch(window); m != nil && !rejectedPrefixes[m[1]] {
			code = m[1] + m[2]
		}
	}
	return nit, code
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
