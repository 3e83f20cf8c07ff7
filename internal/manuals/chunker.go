package manuals

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxChunkRunes bounds a single chunk so embeddings stay within the
// model's effective context. Oversized sections split at paragraph
// boundaries.
const maxChunkRunes = 2000

// ChunkMarkdown splits markdown source into passages along heading
// boundaries (levels 1-3). Each chunk carries its heading path as the
// section label.
func ChunkMarkdown(src []byte) []Chunk {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var chunks []Chunk
	var headings [3]string
	var buf strings.Builder

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Section: sectionPath(headings),
			Content: content,
		})
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= 3 {
			flush()
			headings[h.Level-1] = nodeText(h, src)
			for i := h.Level; i < len(headings); i++ {
				headings[i] = ""
			}
			continue
		}

		block := blockText(n, src)
		if block == "" {
			continue
		}
		if buf.Len() > 0 && len([]rune(buf.String()))+len([]rune(block)) > maxChunkRunes {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(block)
	}
	flush()

	for i := range chunks {
		chunks[i].Ordinal = i
	}
	return chunks
}

func sectionPath(headings [3]string) string {
	var parts []string
	for _, h := range headings {
		if h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " > ")
}

// blockText extracts the readable text of a block node. Code blocks
// keep their raw lines; everything else collapses to inline text.
func blockText(n ast.Node, src []byte) string {
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var sb strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(src))
		}
		return strings.TrimRight(sb.String(), "\n")
	case *ast.ThematicBreak:
		return ""
	default:
		return nodeText(n, src)
	}
}

// nodeText collects all inline text under a node.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.AutoLink:
			sb.Write(t.URL(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
