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


package ingestion

import (
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// cleanJSON reduces a model response to the JSON object it contains:
// markdown fences are stripped and anything outside the outermost braces
// is dropped.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// repairJSON fixes formatting mistakes models commonly make: trailing
// commas before a closing bracket, and keys missing their opening quote
// (`, type":` becomes `, "type":`).
func repairJSON(s string) string {
	s = trailingCommaPattern.ReplaceAllString(s, "$1")

	in := []rune(s)
	out := make([]rune, 0, len(in)+16)
	inString := false
	for i := 0; i < len(in); i++ {
		ch := in[i]
		out = append(out, ch)
		switch {
		case ch == '"' && !escaped(in, i):
			inString = !inString
			continue
		case inString || (ch != '{' && ch != ','):
			continue
		}

		// After { or , outside a string: copy whitespace, then look for a bare key.
		j := i + 1
		for j < len(in) && isSpace(in[j]) {
			out = append(out, in[j])
			j++
		}
		k := j
		for k < len(in) && (isLetter(in[k]) || in[k] == '_') {
			k++
		}
		if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
			out = append(out, '"')
			out = append(out, in[j:k+1]...)
			i = k
			continue
		}
		i = j - 1
	}
	return string(out)
}

func escaped(s []rune, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
