package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
)

const notesMarker = "[Notes]"

// decorative placeholders repeat on every slide and carry no content.
var decorative = map[string]bool{"sldNum": true, "dt": true, "ftr": true}

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Presentation reads .pptx files and emits one candidate chunk per slide.
// The title comes from the first title placeholder, the body joins the text
// of the remaining shapes, and speaker notes follow a [Notes] marker.
type Presentation struct{}

// NewPresentation creates a presentation extractor.
func NewPresentation() *Presentation { return &Presentation{} }

type pptxShape struct {
	placeholder string
	paragraphs  []string
}

func (s pptxShape) text() string {
	return strings.TrimSpace(strings.Join(s.paragraphs, "\n"))
}

func (p *Presentation) Extract(_ context.Context, file string) (Result, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open presentation: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	type slideRef struct {
		number int
		name   string
	}
	var slides []slideRef
	for _, f := range zr.File {
		files[f.Name] = f
		if m := slidePath.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slideRef{number: n, name: f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var chunks []document.Chunk
	for _, ref := range slides {
		shapes, err := readShapes(files[ref.name])
		if err != nil {
			return Result{}, fmt.Errorf("slide %d: %w", ref.number, err)
		}
		notes := readNotes(files, ref.name)

		title, body := splitTitle(shapes)
		if title == "" && body == "" && notes == "" {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Slide %d", ref.number)
		if title != "" {
			b.WriteString(": " + title)
		}
		if body != "" {
			b.WriteString("\n" + body)
		}
		if notes != "" {
			b.WriteString("\n" + notesMarker + " " + notes)
		}

		chunk := document.NewChunk(b.String())
		chunk.Metadata = document.Metadata{"slide": ref.number, "slide_title": title}
		chunks = append(chunks, chunk)
	}

	return ChunksResult(chunks, document.Metadata{"total_slides": len(slides)}), nil
}

// splitTitle picks the first title placeholder and joins the rest.
func splitTitle(shapes []pptxShape) (title, body string) {
	var rest []string
	for _, s := range shapes {
		text := s.text()
		if text == "" || decorative[s.placeholder] {
			continue
		}
		if title == "" && (s.placeholder == "title" || s.placeholder == "ctrTitle") {
			title = text
			continue
		}
		rest = append(rest, text)
	}
	return title, strings.Join(rest, "\n")
}

// readNotes follows the slide's relationships to its notes slide and
// returns the text of its body placeholders.
func readNotes(files map[string]*zip.File, slideName string) string {
	relsName := path.Join(path.Dir(slideName), "_rels", path.Base(slideName)+".rels")
	relsFile, ok := files[relsName]
	if !ok {
		return ""
	}

	rc, err := relsFile.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()

	var rels struct {
		Relationships []struct {
			Type   string `xml:"Type,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return ""
	}

	for _, rel := range rels.Relationships {
		if !strings.HasSuffix(rel.Type, "/notesSlide") {
			continue
		}
		notesFile, ok := files[path.Join(path.Dir(slideName), rel.Target)]
		if !ok {
			return ""
		}
		shapes, err := readShapes(notesFile)
		if err != nil {
			return ""
		}
		var texts []string
		for _, s := range shapes {
			if s.placeholder == "body" {
				if text := s.text(); text != "" {
					texts = append(texts, text)
				}
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// readShapes streams a slide part and collects the text of every shape,
// including shapes nested in groups.
func readShapes(f *zip.File) ([]pptxShape, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		shapes []pptxShape
		cur    *pptxShape
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return shapes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse slide xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				cur = &pptxShape{}
			case "ph":
				if cur != nil {
					cur.placeholder = attr(t, "type")
					if cur.placeholder == "" {
						cur.placeholder = "body"
					}
				}
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cur != nil && strings.TrimSpace(para.String()) != "" {
					cur.paragraphs = append(cur.paragraphs, para.String())
				}
				para.Reset()
			case "sp":
				if cur != nil {
					shapes = append(shapes, *cur)
				}
				cur = nil
			}
		case xml.CharData:
			if inText && cur != nil {
				para.Write(t)
			}
		}
	}
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
