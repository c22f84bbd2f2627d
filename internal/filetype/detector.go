// Package filetype sniffs uploaded bytes by magic number to distinguish a
// genuine PDF from a non-PDF upload, independent of filename or declared
// content type.
package filetype

import (
	"github.com/gabriel-vasile/mimetype"
)

// Detector wraps magic-byte sniffing.
type Detector struct{}

func New() *Detector { return &Detector{} }

// IsPDF reports whether data's magic bytes identify it as a PDF.
func (d *Detector) IsPDF(data []byte) bool {
	mtype := mimetype.Detect(data)
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/pdf") {
			return true
		}
	}
	return false
}
