package nntpseg

import (
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/nzb"
	"github.com/gaby/fdata/internal/subject"
)

// SegmentDescriptor is one article of a file entry, ready to become an
// fdstream segment: Size is the yEnc-declared (encoded) byte count used
// only as a layout hint, not the true decoded size.
type SegmentDescriptor struct {
	Number    int
	Size      uint64
	MessageID string
}

// FileDescriptor is one NZB file entry resolved to a filename and its
// ordered segment list.
type FileDescriptor struct {
	Filename string
	Segments []SegmentDescriptor
}

// LoadNZB parses an NZB document and returns one FileDescriptor per
// <file> entry, in document order. Filenames are recovered from the
// posted subject the same way the teacher's internal/subject does, then
// NFC-normalized so accented/composed Unicode variants of the same name
// collapse to one canonical segstore key.
func LoadNZB(r io.Reader) ([]FileDescriptor, error) {
	doc, err := nzb.Parse(r)
	if err != nil {
		return nil, fderrors.Wrap("nntpseg.LoadNZB", fderrors.Input, fderrors.InvalidData, err)
	}
	out := make([]FileDescriptor, 0, len(doc.Files))
	seen := map[string]int{}
	for idx, f := range doc.Files {
		name, ok := subject.FilenameFromSubject(f.Subject)
		if !ok || name == "" {
			name = fallbackName(idx)
		}
		name = norm.NFC.String(name)
		seen[name]++
		if seen[name] > 1 {
			name = disambiguate(name, seen[name])
		}

		fd := FileDescriptor{Filename: name, Segments: make([]SegmentDescriptor, 0, len(f.Segments))}
		for _, s := range f.Segments {
			fd.Segments = append(fd.Segments, SegmentDescriptor{
				Number:    s.Number,
				Size:      uint64(s.Bytes),
				MessageID: strings.TrimSpace(s.ID),
			})
		}
		out = append(out, fd)
	}
	return out, nil
}

func fallbackName(idx int) string {
	return "file_" + itoa(idx) + ".bin"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func disambiguate(name string, n int) string {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[:dot] + "__" + itoa(n) + name[dot:]
	}
	return name + "__" + itoa(n)
}
