// stock-rebuild recomputes blood_stocks from the donation and issue ledgers.
// Run it after manual DB surgery or to verify the online counters.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/stock-rebuild
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/models"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"bitbucket.org/mmhealthfocus/bbms_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "StockRebuild")

	if err := workflow.RebuildBloodStocks(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	stocks, err := models.GetBloodStocks(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read stock after rebuild: %v\n", err)
		os.Exit(1)
	}
	for _, stock := range stocks {
		fmt.Printf("%-3s %d unit(s)\n", stock.GroupCode, stock.UnitsAvailable)
	}
}
