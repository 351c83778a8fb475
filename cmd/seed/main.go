package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Elogic360/neatify/config"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/internal/db"
	"github.com/Elogic360/neatify/internal/seed"
)

// Usage:
//
//	go run ./cmd/seed                 seed the demo catalog when empty
//	go run ./cmd/seed <catalog.xlsx>  import products and variations
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	if len(os.Args) < 2 {
		if err := db.Seed(); err != nil {
			log.Fatal("Failed to seed demo catalog:", err)
		}
		fmt.Println("Demo catalog ready.")
		return
	}

	filePath := os.Args[1]
	fmt.Printf("Reading XLSX file: %s\n", filePath)
	products, report, err := seed.ReadCatalogXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Product rows: %d\n", report.ProductRows)
	fmt.Printf("  Valid products: %d\n", report.Products)
	fmt.Printf("  Variations: %d\n", report.Variations)
	fmt.Printf("  Skipped rows: %d\n", len(report.Skipped))
	for _, reason := range report.Skipped {
		fmt.Printf("    - %s\n", reason)
	}

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	batchSize := 500
	fmt.Printf("Starting bulk import with batch size: %d\n", batchSize)
	created, err := seed.Import(context.Background(), repository.NewProductRepository(db.GetDB()), products, batchSize)
	if err != nil {
		log.Fatal("Failed to import products:", err)
	}

	fmt.Println("Import completed successfully!")
	fmt.Printf("Products imported: %d (already present: %d)\n", created, len(products)-created)
}
