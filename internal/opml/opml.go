// Package opml exports the served channel feeds as an OPML document.
package opml

import (
	"encoding/xml"
	"sort"
	"time"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry is one feed and the folder it is listed under.
type FeedEntry struct {
	Folder  string // empty for the top level
	Title   string
	URL     string // RSS document
	HTMLURL string // human-readable page
}

// Export generates an OPML document. Folders and the feeds inside them keep
// the order of entries; top-level feeds come first.
func Export(title string, entries []FeedEntry, created time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: created.Format(time.RFC1123Z),
		},
	}

	var root []Outline
	folders := make(map[string]*Outline)
	var folderOrder []string
	for _, e := range entries {
		feed := Outline{
			Text:    e.Title,
			Title:   e.Title,
			Type:    "rss",
			XMLURL:  e.URL,
			HTMLURL: e.HTMLURL,
		}
		if e.Folder == "" {
			root = append(root, feed)
			continue
		}
		fo, ok := folders[e.Folder]
		if !ok {
			fo = &Outline{Text: e.Folder, Title: e.Folder}
			folders[e.Folder] = fo
			folderOrder = append(folderOrder, e.Folder)
		}
		fo.Outlines = append(fo.Outlines, feed)
	}
	sort.Strings(folderOrder)
	for _, name := range folderOrder {
		root = append(root, *folders[name])
	}
	doc.Body.Outlines = root

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
