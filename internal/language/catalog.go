// Package language holds the fixed set of languages offered for upload.
package language

import "github.com/loqalabs/loqa-tutor/internal/ui"

// Auto asks the backend to detect the spoken language.
const Auto = "auto"

// Option is an immutable code/name pair.
type Option struct {
	Code string
	Name string
}

var catalog = []Option{
	{Code: Auto, Name: "Auto Detect"},
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "zh", Name: "Chinese"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "ru", Name: "Russian"},
}

// Catalog returns a copy of the supported languages, Auto first.
func Catalog() []Option {
	return append([]Option(nil), catalog...)
}

func Lookup(code string) (Option, bool) {
	for _, opt := range catalog {
		if opt.Code == code {
			return opt, true
		}
	}
	return Option{}, false
}

func Valid(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// Options renders the catalog as dropdown entries.
func Options() []ui.Option {
	out := make([]ui.Option, 0, len(catalog))
	for _, opt := range catalog {
		out = append(out, ui.Option{Value: opt.Code, Label: opt.Name})
	}
	return out
}
