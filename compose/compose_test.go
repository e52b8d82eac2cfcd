package compose

import (
	"strings"
	"testing"

	"github.com/catadex/catadex/core"
)

func TestTextComposer_Compose(t *testing.T) {
	composer := NewTextComposer()

	item := &core.CatalogItem{
		Name:        "Trailhead Hiking Boots",
		Brand:       "Northpeak",
		Category:    "Footwear",
		Description: "Waterproof leather boots",
		Attributes:  map[string]string{"size": "42", "color": "brown"},
	}

	text, metadata := composer.Compose(item)

	for _, want := range []string{"Trailhead Hiking Boots", "Brand: Northpeak", "Category: Footwear", "Waterproof leather boots", "color: brown", "size: 42"} {
		if !strings.Contains(text, want) {
			t.Errorf("Compose() text missing %q:\n%s", want, text)
		}
	}

	if metadata["name"] != "Trailhead Hiking Boots" {
		t.Errorf("Expected name metadata, got %q", metadata["name"])
	}
	if metadata["brand"] != "Northpeak" {
		t.Errorf("Expected brand metadata, got %q", metadata["brand"])
	}
}

func TestTextComposer_Deterministic(t *testing.T) {
	composer := NewTextComposer()
	item := &core.CatalogItem{
		Name:       "Item",
		Attributes: map[string]string{"a": "1", "b": "2", "c": "3"},
	}

	first, _ := composer.Compose(item)
	for i := 0; i < 20; i++ {
		text, _ := composer.Compose(item)
		if text != first {
			t.Fatal("Compose() is not deterministic over attribute maps")
		}
	}
}

func TestTextComposer_EmptyItem(t *testing.T) {
	composer := NewTextComposer()

	text, _ := composer.Compose(&core.CatalogItem{})
	if text != "" {
		t.Errorf("Expected empty text for empty item, got %q", text)
	}

	// Blank attribute values contribute nothing
	text, _ = composer.Compose(&core.CatalogItem{Attributes: map[string]string{"size": ""}})
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}
}
