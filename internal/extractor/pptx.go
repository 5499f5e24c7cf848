package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

const slidePrefix = "ppt/slides/slide"

// readSlides returns the text of every slide of an OOXML deck in presentation order.
// Each drawing paragraph becomes one line.
func readSlides(filePath string) ([]string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("not an OOXML presentation (legacy binary .ppt is not readable): %w", err)
		}
		return nil, err
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	order := slideOrder(files)
	if order == nil {
		order = numberedSlides(zr.File)
	}
	if len(order) == 0 {
		return nil, errors.New("presentation contains no slides")
	}

	pages := make([]string, 0, len(order))
	for i, name := range order {
		rc, err := files[name].Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i+1, err)
		}
		text, err := slideText(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

type presentationXML struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder lists slide part names in presentation order, following the
// sldIdLst of ppt/presentation.xml through its relationships. Slide file
// names keep their numbers when slides are moved, so they only order a deck
// as a fallback. It returns nil when the order cannot be resolved.
func slideOrder(files map[string]*zip.File) []string {
	var pres presentationXML
	if err := decodePart(files["ppt/presentation.xml"], &pres); err != nil || len(pres.SlideIDs) == 0 {
		return nil
	}
	var rels relationshipsXML
	if err := decodePart(files["ppt/_rels/presentation.xml.rels"], &rels); err != nil {
		return nil
	}
	targets := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		if strings.HasPrefix(r.Target, "/") {
			targets[r.ID] = strings.TrimPrefix(path.Clean(r.Target), "/")
		} else {
			targets[r.ID] = path.Join("ppt", r.Target)
		}
	}

	order := make([]string, 0, len(pres.SlideIDs))
	for _, id := range pres.SlideIDs {
		name, ok := targets[id.RelID]
		if !ok || files[name] == nil {
			return nil
		}
		order = append(order, name)
	}
	return order
}

func decodePart(f *zip.File, v any) error {
	if f == nil {
		return errors.New("missing part")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// numberedSlides orders the slide parts by the number in their file name.
func numberedSlides(all []*zip.File) []string {
	type slideFile struct {
		num  int
		name string
	}
	var slides []slideFile
	for _, f := range all {
		if num, ok := slideNumber(f.Name); ok {
			slides = append(slides, slideFile{num: num, name: f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

// slideNumber parses "ppt/slides/slide12.xml" into 12.
func slideNumber(name string) (int, bool) {
	if path.Dir(name) != "ppt/slides" || !strings.HasPrefix(name, slidePrefix) || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, slidePrefix), ".xml"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// slideText walks the DrawingML tokens collecting <a:t> runs, breaking lines
// at </a:p> and <a:br/>.
func slideText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines  []string
		line   strings.Builder
		inText bool
	)
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				flush()
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	flush()
	return strings.Join(lines, "\n"), nil
}
