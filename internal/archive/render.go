// ABOUTME: Dossier export for synthesized containment documents
// ABOUTME: Builds the markdown file layout and converts it to HTML

package archive

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// Markdown lays out a document in the standard containment file format.
func Markdown(doc *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Item #: %s\n\n", doc.ObjectID)
	fmt.Fprintf(&b, "**Object Class:** %s\n\n", doc.ObjectClass)
	b.WriteString("## Special Containment Procedures\n\n")
	b.WriteString(strings.TrimSpace(doc.ContainmentProcedures))
	b.WriteString("\n\n## Description\n\n")
	b.WriteString(strings.TrimSpace(doc.Description))
	b.WriteString("\n")
	return b.String()
}

// RenderHTML converts a document's dossier markdown to HTML.
func RenderHTML(doc *Document) ([]byte, error) {
	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(doc)), &htmlBuf); err != nil {
		return nil, fmt.Errorf("converting dossier: %w", err)
	}
	return htmlBuf.Bytes(), nil
}
