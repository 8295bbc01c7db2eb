package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/elstore/backend-elstore/internal/db"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if err := db.Migrate(dbURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	productIDs := seedProducts(ctx, pool)
	seedDeals(ctx, pool, productIDs)

	log.Println("Seeding completed successfully!")
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) map[string]string {
	products := []struct {
		Name        string
		Description string
		Price       int64 // minor units
	}{
		{"Desk Lamp", "Adjustable LED desk lamp", 600},
		{"Notebook A5", "Dotted 120 page notebook", 450},
		{"Gel Pen Black", "0.5mm black gel pen", 120},
		{"Water Bottle 750ml", "Insulated stainless bottle", 1850},
		{"Canvas Tote", "Heavy duty canvas tote bag", 990},
		{"Wireless Mouse", "Silent click wireless mouse", 2400},
		{"USB-C Cable 2m", "Braided 60W charging cable", 750},
		{"Ceramic Mug", "350ml stoneware mug", 680},
		{"Sticky Notes", "Pack of five 76mm pads", 320},
		{"Desk Organizer", "Bamboo five compartment tray", 1540},
	}

	fmt.Println("Seeding Products...")
	ids := make(map[string]string)
	for _, p := range products {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO products (name, description, price)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET
				description = EXCLUDED.description,
				price = EXCLUDED.price
			RETURNING id;
		`, p.Name, p.Description, p.Price).Scan(&id)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Name, err)
			continue
		}
		ids[p.Name] = id
	}
	return ids
}

func seedDeals(ctx context.Context, pool *pgxpool.Pool, productIDs map[string]string) {
	deals := []struct {
		Product     string
		Description string
	}{
		{"Desk Lamp", "Buy 1 Get 1 Free"},
		{"Gel Pen Black", "Buy 2 Get 1 Free"},
		{"Notebook A5", "Buy 2 Get 10% off on the next"},
		{"Ceramic Mug", "Buy 3 Get 25% off on the next"},
	}

	fmt.Println("Seeding Deals...")
	for _, d := range deals {
		prodID, ok := productIDs[d.Product]
		if !ok {
			log.Printf("Missing product ID for %s", d.Product)
			continue
		}

		// Only one deal per product may be active, so retire any existing
		// active deal before inserting the new one.
		description := strings.ToUpper(d.Description)
		_, err := pool.Exec(ctx, `
			UPDATE discount_deals SET active = false, last_updated = NOW()
			WHERE product_id = $1 AND active AND UPPER(description) <> $2;
		`, prodID, description)
		if err != nil {
			log.Printf("Failed to retire deals for %s: %v", d.Product, err)
			continue
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO discount_deals (product_id, description, active)
			SELECT $1, $2, true
			WHERE NOT EXISTS (
				SELECT 1 FROM discount_deals
				WHERE product_id = $1 AND active
			);
		`, prodID, description)
		if err != nil {
			log.Printf("Failed to seed deal for %s: %v", d.Product, err)
		}
	}
}
