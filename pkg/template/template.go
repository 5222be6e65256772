// Package template renders the text of stage automation messages.
package template

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/salesflow/pkg/models"
)

// MessageData is what a message template can reference.
type MessageData struct {
	Lead   models.Lead
	Record models.PipelineRecord
	Stage  models.Stage
	From   models.StageID
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"money": Money,
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}

		return t.Format("02/01/2006")
	},
	"upper": strings.ToUpper,
	"firstName": func(name string) string {
		if fields := strings.Fields(name); len(fields) > 0 {
			return fields[0]
		}

		return ""
	},
}

// Parse compiles text with the message functions available.
func Parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	return tmpl, nil
}

// Render executes text against data and returns the trimmed result.
func Render(text string, data any) (string, error) {
	tmpl, err := Parse("message", text)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", text, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// RenderMessage renders an automation template for one record.
func RenderMessage(text string, data MessageData) (string, error) {
	return Render(text, data)
}

// Validate renders text against sample data so broken automations are found
// when the definition loads, not when the first lead reaches the stage.
func Validate(text string) error {
	expected := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	_, err := RenderMessage(text, MessageData{
		Lead:   models.Lead{ID: "sample", Name: "Nombre Apellido", Fields: map[string]string{}},
		Record: models.PipelineRecord{CurrentStage: models.InitialStage, ExpectedCloseDate: &expected},
		Stage:  models.Stage{ID: models.InitialStage},
		From:   models.InitialStage,
	})

	return err
}

// Money formats an amount in pesos: "$ 2.500.000" or "$ 1.234,50".
func Money(amount float64) string {
	cents := int64(math.Round(amount * 100))

	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	whole := strconv.FormatInt(cents/100, 10)

	var grouped strings.Builder

	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}

		grouped.WriteRune(digit)
	}

	result := sign + "$ " + grouped.String()
	if fraction := cents % 100; fraction != 0 {
		result += fmt.Sprintf(",%02d", fraction)
	}

	return result
}
