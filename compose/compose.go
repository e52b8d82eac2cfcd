// Copyright 2025 Catadex Authors
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


// Package compose builds the text and metadata that get embedded for a
// catalog item. Composition must be deterministic: the same item always
// yields the same text, so the content hash reliably detects change.
package compose

import (
	"sort"
	"strings"

	"github.com/catadex/catadex/core"
)

// Composer turns a catalog item into embedding text and a small metadata
// map. Implementations must be deterministic.
type Composer interface {
	Compose(item *core.CatalogItem) (text string, metadata map[string]string)
}

// TextComposer is the default Composer. It concatenates the item's
// descriptive fields with attributes in sorted key order.
type TextComposer struct{}

var _ Composer = (*TextComposer)(nil)

// NewTextComposer creates the default composer.
func NewTextComposer() *TextComposer {
	return &TextComposer{}
}

// Compose builds the embedding text and metadata for an item. An item
// with no descriptive content at all yields empty text, which the sync
// engine classifies as a skip.
func (c *TextComposer) Compose(item *core.CatalogItem) (string, map[string]string) {
	var b strings.Builder

	if item.Name != "" {
		b.WriteString(item.Name)
	}
	if item.Brand != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Brand: ")
		b.WriteString(item.Brand)
	}
	if item.Category != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Category: ")
		b.WriteString(item.Category)
	}
	if item.Description != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(item.Description)
	}

	if len(item.Attributes) > 0 {
		keys := make([]string, 0, len(item.Attributes))
		for k := range item.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := item.Attributes[k]
			if v == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}

	metadata := map[string]string{
		"name": item.Name,
	}
	if item.Brand != "" {
		metadata["brand"] = item.Brand
	}
	if item.Category != "" {
		metadata["category"] = item.Category
	}

	return strings.TrimSpace(b.String()), metadata
}
