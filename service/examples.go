package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/go-json-experiment/json/jsontext"
)

// ExamplesHost is the address printed in generated examples, the default
// listen address of ridbagdb.
const ExamplesHost = "127.0.0.1:8080"

// SaveExample writes a markdown page with the curl command and the http
// exchange of response to $RIDBAGDB_EXAMPLES_DIR. Nothing is written when the
// variable is empty.
func SaveExample(response *apitest.Response, title, description string) {

	dir := os.Getenv("RIDBAGDB_EXAMPLES_DIR")
	if dir == "" {
		return
	}

	request := response.Request
	target := request.URL.Path
	if request.URL.RawQuery != "" {
		target += "?" + request.URL.RawQuery
	}

	b := &strings.Builder{}
	b.WriteString("# " + title + "\n\n")
	if description != "" {
		b.WriteString(trimIndent(description) + "\n\n")
	}

	b.WriteString("```sh\ncurl")
	if request.Method != "GET" {
		b.WriteString(" -X " + request.Method)
	}
	b.WriteString(" \"http://" + ExamplesHost + target + "\"")
	for _, k := range sortedKeys(request.Header) {
		for _, v := range request.Header[k] {
			b.WriteString(" \\\n  -H \"" + k + ": " + v + "\"")
		}
	}
	requestBody := indentBody(response.BodyRequestString())
	if requestBody != "" {
		b.WriteString(" \\\n  -d '" + requestBody + "'")
	}
	b.WriteString("\n```\n\n")

	b.WriteString("```http\n")
	b.WriteString(request.Method + " " + target + " " + request.Proto + "\n")
	b.WriteString("Host: " + ExamplesHost + "\n")
	if requestBody != "" {
		b.WriteString("\n" + requestBody + "\n")
	}
	b.WriteString("\n" + response.Proto + " " + response.Status + "\n")
	for _, k := range sortedKeys(response.Header) {
		if k == "Date" {
			continue
		}
		for _, v := range response.Header[k] {
			b.WriteString(k + ": " + v + "\n")
		}
	}
	b.WriteString("\n" + indentBody(response.BodyString()) + "\n```\n")

	filename := filepath.Join(dir, exampleFilename(title))
	err := os.WriteFile(filename, []byte(b.String()), 0666)
	if err != nil {
		slog.Warn("could not write api example", "file", filename, "error", err.Error())
		return
	}
	slog.Debug("api example written", "file", filename)
}

// exampleFilename turns "Add links - bag required" into
// "add-links-bag-required.md".
func exampleFilename(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(words, "-") + ".md"
}

// indentBody pretty prints a json body. Link listings are one json value per
// line and every line is indented on its own. Anything else is returned as is.
func indentBody(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		value := jsontext.Value(line)
		err := value.Indent(jsontext.WithIndent("    "))
		if err != nil {
			return body
		}
		lines[i] = string(value)
	}
	return strings.Join(lines, "\n")
}

func trimIndent(text string) string {
	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	prefix := ""
	found := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, "\t"))]
		if !found || len(indent) < len(prefix) {
			prefix, found = indent, true
		}
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
