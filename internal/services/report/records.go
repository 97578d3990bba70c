package report

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/xelth-com/eckprint/internal/models"
)

type node struct {
	name     string
	text     strings.Builder
	children []*node
}

func (n *node) leaf() bool { return len(n.children) == 0 }

// row elements have at least one child and only leaf children
func (n *node) row() bool {
	if n.leaf() {
		return false
	}
	for _, c := range n.children {
		if !c.leaf() {
			return false
		}
	}
	return true
}

// ParseRecords turns tabular report XML into flat records, one per row
// element, with field names lower-cased. Malformed input yields no records.
func ParseRecords(data []byte) []models.Record {
	root, err := parseTree(data)
	if err != nil || root == nil {
		return []models.Record{}
	}

	records := []models.Record{}
	var walk func(n *node)
	walk = func(n *node) {
		if n.row() {
			rec := make(models.Record, len(n.children))
			for _, c := range n.children {
				rec[strings.ToLower(c.name)] = strings.TrimSpace(c.text.String())
			}
			records = append(records, rec)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	return records
}

func parseTree(data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if len(stack) != 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return root, nil
}

// FetchRecords runs req with xml output and parses the rows
func FetchRecords(ctx context.Context, f Fetcher, req models.ReportRequest) ([]models.Record, models.ReportResult) {
	req.OutputFormat = models.OutputFormatXML
	res := f.Fetch(ctx, req)
	if !res.Success {
		return nil, res
	}
	return ParseRecords(res.Content), res
}
