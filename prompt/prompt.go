// Package prompt renders the instruction sent to the LLM when enhancing an
// article against two top-ranking references.
package prompt

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// MaxReferenceLength is the number of characters of each reference body
// embedded in the prompt
const MaxReferenceLength = 3000

//go:embed templates/enhance_article.md
var enhanceTemplate string

var tmpl = template.Must(template.New("enhance").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(enhanceTemplate))

// Params are the inputs of an enhancement prompt
type Params struct {
	OriginalTitle     string
	OriginalContent   string
	Reference1Title   string
	Reference1Content string
	Reference2Title   string
	Reference2Content string
}

type reference struct {
	Title   string
	Content string
}

type templateData struct {
	OriginalTitle   string
	OriginalContent string
	References      []reference
}

// BuildEnhancePrompt renders the enhancement prompt. The output depends only on p.
func BuildEnhancePrompt(p Params) string {
	data := templateData{
		OriginalTitle:   p.OriginalTitle,
		OriginalContent: p.OriginalContent,
		References: []reference{
			{Title: p.Reference1Title, Content: Truncate(p.Reference1Content, MaxReferenceLength)},
			{Title: p.Reference2Title, Content: Truncate(p.Reference2Content, MaxReferenceLength)},
		},
	}

	var buf bytes.Buffer
	// The template is parsed at init and only reads string fields
	if err := tmpl.Execute(&buf, data); err != nil {
		panic("prompt: executing enhance template: " + err.Error())
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Truncate keeps the first max characters of s and appends "..." when
// anything was cut. Characters are counted as runes.
func Truncate(s string, max int) string {
	count := 0
	for i := range s {
		if count == max {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
