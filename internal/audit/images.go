// Package audit inspects documents for accessibility facts that can be
// checked without a model, used to report the effect of a run.
package audit

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/testforge/a11yforge/internal/domain"
)

// Image is one <img> element of a document
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	HasAlt bool   `json:"has_alt"`
}

// ImageReport lists the images of a document
type ImageReport struct {
	Images []Image `json:"images"`
}

// MissingAlt counts images without an alt attribute. An empty alt marks a
// decorative image and is not counted.
func (r ImageReport) MissingAlt() int {
	n := 0
	for _, img := range r.Images {
		if !img.HasAlt {
			n++
		}
	}
	return n
}

// MissingAltSources returns the src of every image without an alt attribute
func (r ImageReport) MissingAltSources() []string {
	var srcs []string
	for _, img := range r.Images {
		if !img.HasAlt && img.Src != "" {
			srcs = append(srcs, img.Src)
		}
	}
	return srcs
}

// Images parses doc and collects its <img> elements in document order
func Images(doc string) (ImageReport, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ImageReport{}, fmt.Errorf("parsing html: %w", err)
	}

	report := ImageReport{Images: []Image{}}
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			var img Image
			for _, attr := range n.Attr {
				switch attr.Key {
				case "src":
					img.Src = attr.Val
				case "alt":
					img.Alt = attr.Val
					img.HasAlt = true
				}
			}
			report.Images = append(report.Images, img)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(root)

	return report, nil
}

// CompareImages audits a document before and after correction. An empty
// after document counts as unchanged.
func CompareImages(before, after string) (domain.ImageAudit, error) {
	b, err := Images(before)
	if err != nil {
		return domain.ImageAudit{}, err
	}
	if strings.TrimSpace(after) == "" {
		after = before
	}
	a, err := Images(after)
	if err != nil {
		return domain.ImageAudit{}, err
	}

	return domain.ImageAudit{
		Images:        len(b.Images),
		MissingBefore: b.MissingAlt(),
		MissingAfter:  a.MissingAlt(),
	}, nil
}
