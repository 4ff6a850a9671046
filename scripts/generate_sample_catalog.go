package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type sampleProduct struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"price"`
	Images      []string `json:"images,omitempty"`
	Category    string   `json:"category"`
	Active      *bool    `json:"active,omitempty"`
}

// generateSampleCatalog writes two snapshot files for catalog-import.
// catalog2 overrides the price of P002 and retires P003.
func main() {
	dataDir := "data/catalog"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	retired := false
	snapshots := map[string][]sampleProduct{
		"catalog1.jsonl.gz": {
			{ID: "P001", Name: "Phone X", Description: "Flagship phone", Price: "1199.00", Images: []string{"https://cdn.example.com/p001.jpg"}, Category: "phones"},
			{ID: "P002", Name: "USB-C Cable", Price: "19.99", Category: "accessories"},
			{ID: "P003", Name: "Charger 30W", Price: "49.99", Category: "accessories"},
			{ID: "P004", Name: "Phone Case", Price: "25.00", Category: "accessories"},
		},
		"catalog2.jsonl.gz": {
			{ID: "P002", Name: "USB-C Cable", Price: "17.99", Category: "accessories"},
			{ID: "P003", Name: "Charger 30W", Price: "49.99", Category: "accessories", Active: &retired},
			{ID: "P005", Name: "Wireless Earbuds", Price: "89.50", Images: []string{"https://cdn.example.com/p005.jpg"}, Category: "audio"},
		},
	}

	for filename, products := range snapshots {
		filePath := filepath.Join(dataDir, filename)

		if err := createCatalogFile(filePath, products); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d products\n", filePath, len(products))
	}

	fmt.Println("\nImport with:")
	fmt.Printf("  go run ./cmd/catalog-import %s %s\n",
		filepath.Join(dataDir, "catalog1.jsonl.gz"),
		filepath.Join(dataDir, "catalog2.jsonl.gz"))
}

func createCatalogFile(filePath string, products []sampleProduct) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, p := range products {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to write product %s: %w", p.ID, err)
		}
	}

	return nil
}
