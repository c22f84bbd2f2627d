// Package assembly builds the final per-category PDFs and zips them into
// the archive returned to the caller.
package assembly

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/local/tipificador/internal/classify"
	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/pageindex"
	"github.com/local/tipificador/internal/pdfengine"
)

// categoryOrder is the fixed output order for non-empty categories.
var categoryOrder = []classify.Category{classify.CRC, classify.FEV, classify.HEV, classify.OPF, classify.PDE}

var fechaCreacionRe = regexp.MustCompile(`(?i)FECHA DE CREACION\s*:?\s*(\d{1,2})/(\d{1,2})/(\d{2,4})`)

// PageText supplies each global page's cached text, used only for HEV date
// sorting.
type PageText func(g int) string

// SourceResolver maps a global page index to its source PDF path and local
// page offset, mirroring pageindex.Index but decoupled from it so assembly
// can be tested against a fake.
type SourceResolver func(g int) (path string, localPage int, err error)

// Build produces one output PDF per non-empty category, in fixed category
// order, named "<CAT>_<nit>_<invoice>.pdf".
func Build(classification map[int]classify.Category, resolve SourceResolver, pageText PageText, nit, invoiceCode string) (map[string][]byte, error) {
	byCategory := make(map[classify.Category][]int)
	for g, cat := range classification {
		byCategory[cat] = append(byCategory[cat], g)
	}

	outputs := make(map[string][]byte)
	for _, cat := range categoryOrder {
		globals, ok := byCategory[cat]
		if !ok || len(globals) == 0 {
			continue
		}
		if cat == classify.HEV {
			sortHEV(globals, pageText)
		} else {
			sort.Ints(globals)
		}

		refs := make([]pdfengine.PageRef, 0, len(globals))
		for _, g := range globals {
			path, local, err := resolve(g)
			if err != nil {
				return nil, err
			}
			refs = append(refs, pdfengine.PageRef{SourcePath: path, PageIdx: local})
		}

		data, err := pdfengine.Concatenate(refs)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s_%s_%s.pdf", cat, nit, invoiceCode)
		outputs[name] = data
	}
	return outputs, nil
}

// sortHEV orders HEV pages by a FECHA DE CREACION date parsed from each
// page's cached text, ascending, with undated pages last in their original
// relative order. Sort must be stable for that guarantee to hold.
func sortHEV(globals []int, pageText PageText) {
	// Pin "original order" to ascending global index before the stable date
	// sort, since globals arrives via map iteration and has no order of its
	// own otherwise.
	sort.Ints(globals)

	dates := make(map[int]time.Time, len(globals))
	hasDate := make(map[int]bool, len(globals))
	for _, g := range globals {
		if d, ok := parseFechaCreacion(pageText(g)); ok {
			dates[g] = d
			hasDate[g] = true
		}
	}
	sort.SliceStable(globals, func(i, j int) bool {
		gi, gj := globals[i], globals[j]
		hi, hj := hasDate[gi], hasDate[gj]
		if hi && !hj {
			return true
		}
		if !hi && hj {
			return false
		}
		if !hi && !hj {
			return false
		}
		return dates[gi].Before(dates[gj])
	})
}

func parseFechaCreacion(text string) (time.Time, bool) {
	m := fechaCreacionRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, errD := strconv.Atoi(m[1])
	month, errM := strconv.Atoi(m[2])
	year, errY := strconv.Atoi(m[3])
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// Zip packages named outputs into a DEFLATE-compressed archive, entries in
// sorted name order. Zip does not name the archive itself: a single job's
// archive is offered as "<invoice>.zip", and a batch stores each package's
// archive as "<packageName>.zip".
func Zip(outputs map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, errs.NewInternal("create zip entry", err)
		}
		if _, err := w.Write(outputs[name]); err != nil {
			return nil, errs.NewInternal("write zip entry", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errs.NewInternal("close zip writer", err)
	}
	return buf.Bytes(), nil
}

// ResolverFromIndex adapts a pageindex.Index and a per-pdf path lookup into
// a SourceResolver.
func ResolverFromIndex(index pageindex.Index, pathFor func(pdfIdx int) string) SourceResolver {
	return func(g int) (string, int, error) {
		ref, err := index.Resolve(g)
		if err != nil {
			return "", 0, err
		}
		path := pathFor(ref.PdfIdx)
		if path == "" {
			return "", 0, errs.NewInternal("no source path for pdf index "+strconv.Itoa(ref.PdfIdx), nil)
		}
		return path, ref.LocalPage, nil
	}
}
