package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/poiesic/kexpand/core"
)

// Summary is the structured summary of one text.
type Summary struct {
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	MainPoints  stringList `json:"main_points"`
	Topics      stringList `json:"topics"`
	Entities    stringList `json:"entities"`
	KeyConcepts concepts   `json:"key_concepts"`
	Tags        stringList `json:"tags"`
}

// AllTags returns the normalized union of tags, topics and key concept
// names, in that order.
func (s *Summary) AllTags() []string {
	all := slices.Concat([]string(s.Tags), []string(s.Topics), slices.Sorted(maps.Keys(s.KeyConcepts)))
	return core.NormalizeTags(all)
}

// stringList accepts a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var list []any
	if err := json.Unmarshal(b, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if v == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var single *string
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*l = nil
	if single != nil && strings.TrimSpace(*single) != "" {
		*l = stringList{strings.TrimSpace(*single)}
	}
	return nil
}

// concepts maps a concept to a short explanation. Models sometimes return a
// plain list of names instead; that decodes to names with empty explanations.
type concepts map[string]string

func (c *concepts) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err == nil {
		out := make(concepts, len(m))
		for k, v := range m {
			if v == nil {
				out[k] = ""
				continue
			}
			out[k] = fmt.Sprint(v)
		}
		*c = out
		return nil
	}
	var names stringList
	if err := names.UnmarshalJSON(b); err != nil {
		return err
	}
	out := make(concepts, len(names))
	for _, n := range names {
		out[n] = ""
	}
	*c = out
	return nil
}

var errEmptySummary = errors.New("summary has no text")

// parseSummary decodes a model response into a Summary, repairing common
// formatting mistakes first when the raw text does not decode.
func parseSummary(text string) (*Summary, error) {
	cleaned := cleanJSON(text)
	var s Summary
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		s = Summary{}
		if rerr := json.Unmarshal([]byte(repairJSON(cleaned)), &s); rerr != nil {
			return nil, err
		}
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Summary = strings.TrimSpace(s.Summary)
	if s.Summary == "" {
		return nil, errEmptySummary
	}
	return &s, nil
}

// mergeSummaries combines chunk summaries: lists are unioned in order,
// summaries joined, and the first title and concept explanation win.
func mergeSummaries(parts []*Summary) *Summary {
	out := &Summary{KeyConcepts: concepts{}}
	var texts []string
	for _, p := range parts {
		if out.Title == "" {
			out.Title = p.Title
		}
		texts = append(texts, p.Summary)
		out.MainPoints = union(out.MainPoints, p.MainPoints)
		out.Topics = union(out.Topics, p.Topics)
		out.Entities = union(out.Entities, p.Entities)
		out.Tags = union(out.Tags, p.Tags)
		for k, v := range p.KeyConcepts {
			if _, ok := out.KeyConcepts[k]; !ok {
				out.KeyConcepts[k] = v
			}
		}
	}
	out.Summary = strings.Join(texts, "\n")
	return out
}

func union(a, b stringList) stringList {
	for _, s := range b {
		if !slices.Contains(a, s) {
			a = append(a, s)
		}
	}
	return a
}
