package itinerary

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// Request describes the trip to draft.
type Request struct {
	Destination string   `json:"destination" binding:"required"`
	Days        int      `json:"days" binding:"required,min=1,max=30"`
	Interests   []string `json:"interests"`
}

// Prompt renders the request as a generator prompt.
func (r Request) Prompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a %d-day travel itinerary for %s in markdown.", r.Days, r.Destination)
	if len(r.Interests) > 0 {
		fmt.Fprintf(&sb, " Focus on: %s.", strings.Join(r.Interests, ", "))
	}
	sb.WriteString(" Use one heading per day.")
	return sb.String()
}

// Source tells where a draft's text came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

type Draft struct {
	Markdown string `json:"markdown"`
	Source   Source `json:"source"`
}

var fallbackTemplate = template.Must(template.New("itinerary").Parse(
	`# {{.Days}} days in {{.Destination}}
{{range $i, $d := .DayNumbers}}
## Day {{$d}}

- Morning: explore a neighbourhood of {{$.Destination}}
- Afternoon: {{index $.Activities $i}}
- Evening: dinner at a local restaurant
{{end}}`))

// FallbackGenerator builds a static itinerary without calling any API.
type FallbackGenerator struct{}

func (FallbackGenerator) Draft(r Request) (string, error) {
	days := r.Days
	if days < 1 {
		days = 1
	}

	data := struct {
		Destination string
		Days        int
		DayNumbers  []int
		Activities  []string
	}{
		Destination: r.Destination,
		Days:        days,
	}
	for i := 0; i < days; i++ {
		data.DayNumbers = append(data.DayNumbers, i+1)
		activity := "visit the main sights"
		if len(r.Interests) > 0 {
			activity = r.Interests[i%len(r.Interests)]
		}
		data.Activities = append(data.Activities, activity)
	}

	var sb strings.Builder
	if err := fallbackTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Drafter substitutes the fallback template when generation fails.
type Drafter struct {
	generator Generator
	fallback  FallbackGenerator
}

// NewDrafter accepts a nil generator, in which case every draft uses the
// fallback.
func NewDrafter(generator Generator) *Drafter {
	return &Drafter{generator: generator}
}

func (d *Drafter) Draft(ctx context.Context, r Request) (Draft, error) {
	if d.generator != nil {
		text, err := d.generator.Generate(ctx, r.Prompt())
		if err == nil {
			return Draft{Markdown: text, Source: SourceGenerated}, nil
		}
		if ctx.Err() != nil {
			return Draft{}, ctx.Err()
		}
	}

	text, err := d.fallback.Draft(r)
	if err != nil {
		return Draft{}, fmt.Errorf("itinerary: fallback: %w", err)
	}
	return Draft{Markdown: text, Source: SourceFallback}, nil
}
