package main

import (
	"bufio"
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/catadex/catadex"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

// Sample products in "name|brand|category|description" form, the same
// layout -src files use.
var products = []string{
	"Trailhead 2 Hiking Boots|Northpeak|Footwear|Waterproof leather hiking boots with ankle support and deep-lug outsole.",
	"Ridge Runner Trail Shoes|Northpeak|Footwear|Lightweight trail running shoes with rock plate and breathable mesh upper.",
	"Summit 65 Backpack|Northpeak|Packs|65-liter expedition backpack with adjustable torso and rain cover.",
	"Dayhike 22 Pack|Northpeak|Packs|Compact 22-liter daypack with hydration sleeve and hip belt pockets.",
	"Alpine Shell Jacket|Stratus|Outerwear|Three-layer waterproof shell with pit zips and helmet-compatible hood.",
	"Thermal Base Layer|Stratus|Apparel|Merino wool long-sleeve base layer for cold-weather activity.",
	"Cumulus Down Vest|Stratus|Outerwear|700-fill down vest packable into its own chest pocket.",
	"Campfire Cast Iron Skillet|Hearthware|Cookware|Pre-seasoned 10-inch cast iron skillet for stove or open flame.",
	"Backcountry Stove|Hearthware|Cookware|Canister stove weighing 85 grams with piezo igniter.",
	"Insulated Camp Mug|Hearthware|Cookware|Double-wall stainless mug keeping drinks hot for six hours.",
	"Starlight 2P Tent|Meridian|Shelter|Freestanding two-person tent at under two kilograms trail weight.",
	"Nimbus Sleeping Bag|Meridian|Shelter|15-degree down sleeping bag with draft collar and full-length zip.",
	"Meadow Sleeping Pad|Meridian|Shelter|Inflatable sleeping pad with 4.2 R-value and quiet stretch fabric.",
	"Ultralight Trekking Poles|Meridian|Accessories|Carbon fiber trekking poles with foam grips, 210 grams per pair.",
	"Clearwater Filter Bottle|Brookline|Hydration|Squeeze bottle with inline hollow-fiber filter rated for 1000 liters.",
	"Trailside First Aid Kit|Brookline|Safety|Compact first aid kit covering two people for three days.",
	"Fieldlight Headlamp|Brookline|Lighting|400-lumen rechargeable headlamp with red night-vision mode.",
	"Granite Crash Pad|Vertical|Climbing|Tri-fold bouldering pad with hybrid foam and carry straps.",
	"Ascent Harness|Vertical|Climbing|All-around climbing harness with four gear loops and auto-locking buckle.",
	"Chalk Companion Bag|Vertical|Climbing|Fleece-lined chalk bag with brush holder and waist belt.",
}

var (
	dbPath       = flag.String("db", "./catalog_db", "path to BadgerDB database directory")
	seedFileName = flag.String("src", "", "file of seed data")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// parseItem splits a "name|brand|category|description" line. Missing
// trailing fields are left empty; blank lines yield nil.
func parseItem(line string) *core.CatalogItem {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	parts := strings.SplitN(line, "|", 4)
	item := &core.CatalogItem{Name: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		item.Brand = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		item.Category = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		item.Description = strings.TrimSpace(parts[3])
	}
	return item
}

// seedBatched reads from a source iterator and adds items in batches.
func seedBatched(ctx context.Context, catalog storage.CatalogRepository, source iter.Seq[string], batchSize int) (int, error) {
	batch := make([]*core.CatalogItem, 0, batchSize)
	total := 0

	add := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := catalog.AddItems(ctx, batch...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for line := range source {
		item := parseItem(line)
		if item == nil {
			continue
		}
		if err := core.ValidateCatalogItem(item); err != nil {
			slog.Warn("skipping invalid seed line", "line", line, "error", err)
			continue
		}
		batch = append(batch, item)
		if len(batch) == batchSize {
			if err := add(); err != nil {
				return total, err
			}
		}
	}

	return total, add()
}

func main() {
	platform, err := catadex.Open(*dbPath)
	if err != nil {
		panic(err)
	}
	defer platform.Close()

	ctx := context.Background()

	var source iter.Seq[string]
	if seedFileName != nil && *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(products)
	}

	total, err := seedBatched(ctx, platform.Catalog(), source, 5)
	if err != nil {
		panic(err)
	}
	slog.Info("seeding complete", "items", total)
}
