package voc

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// document is one Annotations/<id>.xml file.
type document struct {
	XMLName   xml.Name `xml:"annotation"`
	Folder    string   `xml:"folder,omitempty"`
	Filename  string   `xml:"filename"`
	Size      *sizeTag `xml:"size"`
	Segmented int      `xml:"segmented"`
	Objects   []object `xml:"object"`
}

type sizeTag struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type object struct {
	Name       string    `xml:"name"`
	Pose       *string   `xml:"pose"`
	Truncated  *flag     `xml:"truncated"`
	Difficult  *flag     `xml:"difficult"`
	Occluded   *flag     `xml:"occluded"`
	BndBox     *bndBox   `xml:"bndbox"`
	Attributes *attrList `xml:"attributes"`
}

type bndBox struct {
	XMin number `xml:"xmin"`
	YMin number `xml:"ymin"`
	XMax number `xml:"xmax"`
	YMax number `xml:"ymax"`
}

type attrList struct {
	Items []attr `xml:"attribute"`
}

type attr struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// flag is a 0/1 element; VOC tools also write true/false.
type flag bool

func (f flag) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	v := "0"
	if f {
		v = "1"
	}
	return e.EncodeElement(v, start)
}

func (f *flag) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		*f = true
	case "0", "false", "no", "":
		*f = false
	default:
		return fmt.Errorf("<%s> must be 0 or 1, got %q", start.Name.Local, s)
	}
	return nil
}

// number keeps sub-pixel coordinates exact while writing integers without
// a fraction.
type number float64

func (n number) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(strconv.FormatFloat(float64(n), 'g', -1, 64), start)
}

func (n *number) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("<%s>: %w", start.Name.Local, err)
	}
	*n = number(f)
	return nil
}

func readDocument(path string) (*document, error) {
	fi, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fi.Close()

	var doc document
	if err := xml.NewDecoder(fi).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func writeDocument(path string, doc *document) error {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}
