package converter

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// maxXMLMember bounds how much of a single archive member is parsed.
const maxXMLMember = 256 * 1024 * 1024

func findZipMember(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// openZipMember opens name inside zr, failing when it does not exist.
func openZipMember(zr *zip.Reader, name string) (io.ReadCloser, error) {
	f := findZipMember(zr, name)
	if f == nil {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(rc, maxXMLMember), rc}, nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// relID returns the namespaced r:id attribute, which shares its local name with the plain id.
func relID(se xml.StartElement) string {
	for _, a := range se.Attr {
		if a.Name.Local == "id" && a.Name.Space != "" {
			return a.Value
		}
	}
	return ""
}

// slideOrder returns the slide part names of a presentation in display order.
// It follows presentation.xml and its relationships, and falls back to the
// numeric order of ppt/slides/slideN.xml when those cannot be read.
func slideOrder(zr *zip.Reader) []string {
	if names := slidesFromPresentation(zr); len(names) > 0 {
		return names
	}

	type numbered struct {
		name string
		n    int
	}
	var slides []numbered
	for _, f := range zr.File {
		dir, base := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(base, "slide") || !strings.HasSuffix(base, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, numbered{f.Name, n})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	out := make([]string, len(slides))
	for i, s := range slides {
		out[i] = s.name
	}
	return out
}

func slidesFromPresentation(zr *zip.Reader) []string {
	rels := map[string]string{}
	rc, err := openZipMember(zr, "ppt/_rels/presentation.xml.rels")
	if err != nil {
		return nil
	}
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			rels[attr(se, "Id")] = attr(se, "Target")
		}
	}
	rc.Close()

	rc, err = openZipMember(zr, "ppt/presentation.xml")
	if err != nil {
		return nil
	}
	defer rc.Close()

	var out []string
	dec = xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sldId" {
			continue
		}
		target, ok := rels[relID(se)]
		if !ok {
			continue
		}
		name := path.Clean(path.Join("ppt", target))
		if strings.HasPrefix(target, "/") {
			name = strings.TrimPrefix(target, "/")
		}
		if findZipMember(zr, name) != nil {
			out = append(out, name)
		}
	}
	return out
}
