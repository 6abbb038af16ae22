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


package storage

import (
	"fmt"

	"github.com/poiesic/kexpand/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalNode serializes a KnowledgeNode to bytes.
func MarshalNode(node *core.KnowledgeNode) []byte {
	buf := make([]byte, core.KnowledgeNodeMUS.Size(*node))
	core.KnowledgeNodeMUS.Marshal(*node, buf)
	return buf
}

// UnmarshalNode deserializes a KnowledgeNode from bytes.
func UnmarshalNode(data []byte) (*core.KnowledgeNode, error) {
	node, _, err := core.KnowledgeNodeMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &node, nil
}

// MarshalEdge serializes a KnowledgeEdge to bytes.
func MarshalEdge(edge *core.KnowledgeEdge) []byte {
	buf := make([]byte, core.KnowledgeEdgeMUS.Size(*edge))
	core.KnowledgeEdgeMUS.Marshal(*edge, buf)
	return buf
}

// UnmarshalEdge deserializes a KnowledgeEdge from bytes.
func UnmarshalEdge(data []byte) (*core.KnowledgeEdge, error) {
	edge, _, err := core.KnowledgeEdgeMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &edge, nil
}

// MarshalHistoryEntry serializes a JobHistoryEntry to bytes.
func MarshalHistoryEntry(entry *core.JobHistoryEntry) []byte {
	buf := make([]byte, core.JobHistoryEntryMUS.Size(*entry))
	core.JobHistoryEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalHistoryEntry deserializes a JobHistoryEntry from bytes.
func UnmarshalHistoryEntry(data []byte) (*core.JobHistoryEntry, error) {
	entry, _, err := core.JobHistoryEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// MarshalTemplate serializes a PromptTemplate to bytes.
func MarshalTemplate(tmpl *core.PromptTemplate) []byte {
	buf := make([]byte, core.PromptTemplateMUS.Size(*tmpl))
	core.PromptTemplateMUS.Marshal(*tmpl, buf)
	return buf
}

// UnmarshalTemplate deserializes a PromptTemplate from bytes.
func UnmarshalTemplate(data []byte) (*core.PromptTemplate, error) {
	tmpl, _, err := core.PromptTemplateMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &tmpl, nil
}
