package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedContractPrices(db)
	seedCommissionRecords(db)

	log.Println("Seeding completed successfully!")
}

// Stable ids so re-running the seeder updates instead of duplicating.
const (
	orgAcme     = "4f2c8a1e-0000-4000-8000-000000000001"
	locDowntown = "4f2c8a1e-0000-4000-8000-000000000002"
	repAlice    = "4f2c8a1e-0000-4000-8000-000000000010"
	repBob      = "4f2c8a1e-0000-4000-8000-000000000011"
	distNorth   = "4f2c8a1e-0000-4000-8000-000000000020"
)

func seedContractPrices(db *sql.DB) {
	rules := []struct {
		ScopeKind     string
		ScopeID       string
		ProductID     int64
		ContractPrice *string
		MarkupPrice   *string
		MinQty        int
		MaxQty        *int
	}{
		{"organization", orgAcme, 101, strPtr("89.50"), nil, 1, intPtr(49)},
		{"organization", orgAcme, 101, strPtr("84.00"), nil, 50, nil},
		{"location", locDowntown, 101, strPtr("82.00"), nil, 1, nil},
		{"individual", repAlice, 101, nil, strPtr("129.99"), 1, nil},
		{"organization", orgAcme, 202, strPtr("310.00"), strPtr("349.00"), 1, intPtr(9)},
		{"organization", orgAcme, 202, strPtr("295.00"), nil, 10, nil},
		{"location", locDowntown, 303, nil, strPtr("45.00"), 1, nil},
	}

	fmt.Println("Seeding contract prices...")
	for _, r := range rules {
		_, err := db.Exec(`
			INSERT INTO contract_prices
				(scope_kind, scope_id, product_id, contract_price, markup_price, min_quantity, max_quantity, effective_date)
			SELECT $1, $2, $3, $4, $5, $6, $7, NOW() - INTERVAL '30 days'
			WHERE NOT EXISTS (
				SELECT 1 FROM contract_prices
				WHERE scope_kind = $1 AND scope_id = $2 AND product_id = $3 AND min_quantity = $6
			);
		`, r.ScopeKind, r.ScopeID, r.ProductID, r.ContractPrice, r.MarkupPrice, r.MinQty, r.MaxQty)
		if err != nil {
			log.Printf("Failed to seed rule for product %d (%s): %v", r.ProductID, r.ScopeKind, err)
		}
	}
}

func seedCommissionRecords(db *sql.DB) {
	records := []struct {
		OrderID    int64
		SalesRepID string
		DistribID  *string
		Rate       string
		SplitRate  *string
		SplitType  string
		Details    string
	}{
		{
			OrderID: 9001, SalesRepID: repAlice, DistribID: strPtr(distNorth),
			Rate: "20.00", SplitRate: strPtr("60.00"), SplitType: "percentage_of_distributor",
			Details: `[{"productId":101,"name":"Glucose Test Strips","price":"89.50","retailPrice":"89.50","cost":"52.00","quantity":10,"hasMarkup":false}]`,
		},
		{
			OrderID: 9002, SalesRepID: repAlice, DistribID: strPtr(distNorth),
			Rate: "15.00", SplitRate: nil, SplitType: "fixed_with_override",
			Details: `[{"productId":101,"name":"Glucose Test Strips","price":"129.99","retailPrice":"89.50","cost":"52.00","quantity":4,"hasMarkup":true}]`,
		},
		{
			OrderID: 9003, SalesRepID: repBob, DistribID: nil,
			Rate: "20.00", SplitRate: nil, SplitType: "percentage_of_distributor",
			Details: `[{"productId":202,"name":"Blood Pressure Monitor","price":"310.00","retailPrice":"349.00","cost":"180.00","quantity":2,"hasMarkup":false},{"productId":303,"variantId":3031,"name":"Lancets 100ct","price":"45.00","retailPrice":"38.00","cost":"21.50","quantity":5,"hasMarkup":true}]`,
		},
	}

	fmt.Println("Seeding commission records...")
	for _, rec := range records {
		_, err := db.Exec(`
			INSERT INTO commission_records
				(order_id, sales_rep_id, distributor_id, organization_id, commission_rate, split_rate, split_type, margin_details)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8::jsonb
			WHERE NOT EXISTS (SELECT 1 FROM commission_records WHERE order_id = $1);
		`, rec.OrderID, rec.SalesRepID, rec.DistribID, orgAcme, rec.Rate, rec.SplitRate, rec.SplitType, rec.Details)
		if err != nil {
			log.Printf("Failed to seed commission record for order %d: %v", rec.OrderID, err)
		}
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
