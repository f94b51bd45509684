// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attentionocr

import (
	"bytes"
	"fmt"
	"text/template"
)

// Prediction is the transcription of an image.
type Prediction struct {
	Path string `json:"path,omitempty"`
	Text string `json:"text"`
	// Score is the sum of the negative log probabilities of the tokens.
	Score float64 `json:"score"`
	// Expected is the known transcription, if any.
	Expected string `json:"expected,omitempty"`
}

// DefaultPredictionTemplate prints one prediction per line.
const DefaultPredictionTemplate = `{{if .Path}}{{.Path}}	{{end}}{{.Text}}{{if .Expected}}	(expected: {{.Expected}}){{end}}
`

// FormatPredictionsFromTemplateFile formats the predictions applying the template file to each of them.
func FormatPredictionsFromTemplateFile(predictions []Prediction, filename string) (string, error) {
	pt, err := template.ParseFiles(filename)
	if err != nil {
		return "", fmt.Errorf("unable to read the template file: %w", err)
	}
	return FormatPredictionsFromTemplate(predictions, pt)
}

// FormatPredictionsFromTemplate formats the predictions applying the template to each of them.
func FormatPredictionsFromTemplate(predictions []Prediction, pt *template.Template) (string, error) {
	result := new(bytes.Buffer)
	for _, p := range predictions {
		if err := pt.Execute(result, p); err != nil {
			return "", fmt.Errorf("unable to execute the template: %w", err)
		}
	}
	return result.String(), nil
}

// FormatPredictions formats the predictions with DefaultPredictionTemplate.
func FormatPredictions(predictions []Prediction) string {
	pt := template.Must(template.New("prediction").Parse(DefaultPredictionTemplate))
	out, err := FormatPredictionsFromTemplate(predictions, pt)
	if err != nil {
		panic(err) // the default template never fails on a Prediction
	}
	return out
}
