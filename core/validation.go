// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidateNode validates a KnowledgeNode according to domain rules.
//
// Validation rules:
//   - SourceLocator must not be empty
//   - SourceType must be one of SourceTypes
//   - Confidence must be within [0,1]
//
// NOT validated (populated by the pipeline):
//   - Vector (embedding is optional)
//   - Tags, Title, Summary (may be empty for sparse sources)
func ValidateNode(node *KnowledgeNode) error {
	if node == nil {
		return fmt.Errorf("%w: node is nil", ErrInvalidNode)
	}

	if strings.TrimSpace(node.SourceLocator) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyLocator)
	}

	if _, err := ParseSourceType(string(node.SourceType)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNode, err)
	}

	if node.Confidence < 0 || node.Confidence > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrInvalidConfidence)
	}

	return nil
}

// ValidateEdge validates a KnowledgeEdge.
func ValidateEdge(edge *KnowledgeEdge) error {
	if edge == nil {
		return fmt.Errorf("%w: edge is nil", ErrInvalidEdge)
	}
	if edge.Source == edge.Target {
		return fmt.Errorf("%w: %w", ErrInvalidEdge, ErrSelfEdge)
	}
	if edge.Weight <= 0 || edge.Weight > 1 {
		return fmt.Errorf("%w: %w: %v", ErrInvalidEdge, ErrInvalidWeight, edge.Weight)
	}
	return nil
}

// ParseSourceType converts s into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(SourceTypes, st) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceType, s)
	}
	return st, nil
}

// ValidateFallbackConfig checks the structural rules of a fallback chain.
// Whether the referenced models exist is checked by the model registry.
func ValidateFallbackConfig(cfg *FallbackConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidFallbackConfig)
	}
	if strings.TrimSpace(cfg.PrimaryModel) == "" {
		return fmt.Errorf("%w: primary model is required", ErrInvalidFallbackConfig)
	}

	seen := make(map[string]struct{}, len(cfg.FallbackModels))
	for _, m := range cfg.FallbackModels {
		if m == cfg.PrimaryModel {
			return fmt.Errorf("%w: %w: %s", ErrInvalidFallbackConfig, ErrPrimaryInFallbacks, m)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%w: %w: %s", ErrInvalidFallbackConfig, ErrDuplicateFallback, m)
		}
		seen[m] = struct{}{}
	}

	for kind, threshold := range cfg.Triggers {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("%w: trigger %s threshold %v must be in (0,1]", ErrInvalidFallbackConfig, kind, threshold)
		}
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidFallbackConfig)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidFallbackConfig)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the distinct placeholder names in text, in order of first use.
func Placeholders(text string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// ValidatePromptTemplate validates a PromptTemplate.
//
// Validation rules:
//   - Name and Template must not be empty
//   - Variables must name exactly the placeholders used in Template
//   - Temperature must be within [0,2], MaxTokens must not be negative
func ValidatePromptTemplate(tmpl *PromptTemplate) error {
	if tmpl == nil {
		return fmt.Errorf("%w: template is nil", ErrInvalidTemplate)
	}
	if strings.TrimSpace(tmpl.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if strings.TrimSpace(tmpl.Template) == "" {
		return fmt.Errorf("%w: template text is required", ErrInvalidTemplate)
	}

	declared := slices.Clone(tmpl.Variables)
	slices.Sort(declared)
	if len(slices.Compact(slices.Clone(declared))) != len(declared) {
		return fmt.Errorf("%w: %w: duplicate declared variable", ErrInvalidTemplate, ErrVariableMismatch)
	}
	used := Placeholders(tmpl.Template)
	slices.Sort(used)
	if !slices.Equal(declared, used) {
		return fmt.Errorf("%w: %w: declared %v, template uses %v",
			ErrInvalidTemplate, ErrVariableMismatch, declared, used)
	}

	if tmpl.Temperature < 0 || tmpl.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v out of range", ErrInvalidTemplate, tmpl.Temperature)
	}
	if tmpl.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens cannot be negative", ErrInvalidTemplate)
	}
	return nil
}

// RenderTemplate substitutes vars into the template's placeholders.
// Every declared variable must be supplied; extra variables are ignored.
func RenderTemplate(tmpl *PromptTemplate, vars map[string]string) (string, error) {
	for _, name := range tmpl.Variables {
		if _, ok := vars[name]; !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl.Template, func(m string) string {
		return vars[m[1:len(m)-1]]
	}), nil
}

// ValidateJobConfig validates a JobConfig.
func ValidateJobConfig(cfg JobConfig) error {
	if cfg.ConcurrencyLimit < 1 {
		return fmt.Errorf("%w: concurrency limit must be at least 1", ErrInvalidJobConfig)
	}
	if cfg.ErrorThreshold < 0 || cfg.ErrorThreshold > 1 {
		return fmt.Errorf("%w: error threshold must be between 0 and 1", ErrInvalidJobConfig)
	}
	return nil
}
