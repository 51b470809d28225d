package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"aitools-pro-billing/internal/config"
	"aitools-pro-billing/internal/infra/adapters/payment"
	"aitools-pro-billing/internal/infra/db/postgres"
	"aitools-pro-billing/internal/infra/redis"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing, and optionally firing a signed sample
// webhook at a running server.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schema := flag.String("schema", "deploy/postgres/init.sql", "schema file to apply")
	target := flag.String("send", "", "base URL of a running server to POST a signed sample charge.success to (e.g. http://localhost:8080)")
	email := flag.String("email", "a@example.com", "customer email for the sample event")
	plan := flag.String("plan", "pro_monthly", "plan code for the sample event")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Apply the schema; every statement is IF NOT EXISTS.
	log.Println("[1/4] Applying schema...")
	sql, err := os.ReadFile(*schema)
	if err != nil {
		log.Fatalf("read schema %s: %v", *schema, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	// 2. Clean the database completely.
	log.Println("[2/4] Wiping webhook_events and subscribers...")
	if _, err := pool.Exec(ctx, `TRUNCATE webhook_events, subscribers RESTART IDENTITY CASCADE;`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Clean the Redis cache to remove any stale entitlements.
	if cfg.Redis.URL != "" {
		log.Println("[3/4] Wiping Redis cache...")
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
	} else {
		log.Println("[3/4] Redis not configured, skipping")
	}

	// 4. Optionally deliver a signed sample event.
	if *target == "" {
		log.Println("[4/4] No -send target, skipping sample delivery")
	} else {
		log.Println("[4/4] Sending signed sample webhook...")
		if err := sendSample(ctx, cfg, *target, *email, *plan); err != nil {
			log.Fatalf("sample delivery: %v", err)
		}
	}

	log.Println("--- E2E Environment Setup Complete ---")
}

func sendSample(ctx context.Context, cfg *config.Config, baseURL, email, plan string) error {
	ps, err := payment.NewPaystackWebhook(cfg.Paystack.SecretKey)
	if err != nil {
		return err
	}
	ref := fmt.Sprintf("e2e_%d", time.Now().Unix())
	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":500000,"currency":"NGN","paid_at":%q,"customer":{"email":%q,"customer_code":"CUS_e2e"},"plan":{"plan_code":%q}}}`,
		ref, time.Now().UTC().Format(time.RFC3339), email, plan))

	for attempt := 1; attempt <= 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+cfg.Paystack.WebhookPath, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(payment.SignatureHeader, ps.Sign(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		out, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		// The second attempt should come back idempotent.
		log.Printf("attempt %d: %d %s", attempt, resp.StatusCode, bytes.TrimSpace(out))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
	return nil
}
