package service

import (
	"strings"
	"testing"

	. "github.com/fulldump/biff"
)

func TestExampleFilename(t *testing.T) {
	AssertEqual(exampleFilename("Add links - bag required"), "add-links-bag-required.md")
	AssertEqual(exampleFilename("List links (resolved)"), "list-links-resolved.md")
}

func TestIndentBody(t *testing.T) {

	t.Run("Link listing", func(t *testing.T) {
		out := indentBody(`{"rid":"#1:1"}` + "\n" + `{"rid":"#1:2"}` + "\n")
		AssertEqual(strings.Count(out, "\"rid\""), 2)
		AssertTrue(strings.HasPrefix(out, "{\n    \"rid\""))
		AssertTrue(strings.HasSuffix(out, "}"))
	})

	t.Run("Not json", func(t *testing.T) {
		AssertEqual(indentBody("method not allowed\n"), "method not allowed")
	})

	t.Run("Empty", func(t *testing.T) {
		AssertEqual(indentBody(""), "")
	})
}

func TestTrimIndent(t *testing.T) {
	AssertEqual(trimIndent("\n\t\tfirst\n\t\t\tnested\n"), "first\n\tnested")
}
