// Command mockgw serves an in-memory payment gateway for local checkout runs.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/luikyv/franchise-checkout/cmd/cmdutil"
	"github.com/luikyv/franchise-checkout/internal/vindi"
	"github.com/luikyv/franchise-checkout/internal/vindi/vinditest"
)

var (
	Port   = cmdutil.EnvValue("MOCKGW_PORT", "8081")
	APIKey = cmdutil.EnvValue("VINDI_API_KEY", "local-api-key")
	// CustomerID matches the gateway customer referenced by the local seed.
	CustomerID = cmdutil.EnvValue("MOCKGW_CUSTOMER_ID", "1001")
)

func main() {
	slog.SetDefault(cmdutil.Logger())

	customerID, err := strconv.ParseInt(CustomerID, 10, 64)
	if err != nil {
		slog.Error("invalid customer id", "error", err)
		os.Exit(1)
	}

	gw := vinditest.NewServer(APIKey)
	gw.AddCustomer(vindi.Customer{
		ID:           customerID,
		Name:         "Cliente Local",
		Email:        "cliente@franquia.local",
		RegistryCode: "12345678909",
	})

	slog.Info("starting mock gateway", "port", Port)
	if err := http.ListenAndServe(":"+Port, gw.Handler()); err != nil && err != http.ErrServerClosed {
		slog.Error("failed to start mock gateway", "error", err)
		os.Exit(1)
	}
}
