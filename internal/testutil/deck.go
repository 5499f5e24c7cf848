// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteDeck writes a minimal .pptx file whose slides contain the given
// paragraphs, shown in the order given, and returns its path.
func WriteDeck(t testing.TB, dir, name string, slides [][]string) string {
	t.Helper()
	order := make([]int, len(slides))
	for i := range order {
		order[i] = i + 1
	}
	return WriteDeckOrdered(t, dir, name, slides, order)
}

// WriteDeckOrdered writes slides[i] to ppt/slides/slide<i+1>.xml and lists
// the slide numbers of order in the presentation's slide list. A nil order
// writes a deck without a slide list.
func WriteDeckOrdered(t testing.TB, dir, name string, slides [][]string, order []int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	zw := zip.NewWriter(f)

	write := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`)
	write("ppt/presentation.xml", presentationXML(order))
	write("ppt/_rels/presentation.xml.rels", relsXML(len(slides)))
	for i, paragraphs := range slides {
		write(fmt.Sprintf("ppt/slides/slide%d.xml", i+1), slideXML(paragraphs))
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close deck: %v", err)
	}
	return p
}

func slideXML(paragraphs []string) string {
	var body strings.Builder
	for _, para := range paragraphs {
		body.WriteString(`<a:p><a:r><a:t>`)
		_ = xml.EscapeText(&body, []byte(para))
		body.WriteString(`</a:t></a:r></a:p>`)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
		`<p:cSld><p:spTree><p:sp><p:txBody>` + body.String() + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func presentationXML(order []int) string {
	var list strings.Builder
	if order != nil {
		list.WriteString(`<p:sldIdLst>`)
		for i, n := range order {
			fmt.Fprintf(&list, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, n+1)
		}
		list.WriteString(`</p:sldIdLst>`)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		list.String() + `</p:presentation>`
}

// relsXML maps rId<n+1> to slide n. rId1 is the slide master, as PowerPoint writes it.
func relsXML(slides int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	for n := 1; n <= slides; n++ {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, n+1, n)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}
