package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	httpadapter "github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	// Loads a local .env file, if any, before the configuration below is read.
	_ "github.com/joho/godotenv/autoload"
	"github.com/luikyv/franchise-checkout/cmd/cmdutil"
	"github.com/luikyv/franchise-checkout/internal/api"
	"github.com/luikyv/franchise-checkout/internal/checkout"
	"github.com/luikyv/franchise-checkout/internal/idempotency"
	"github.com/luikyv/franchise-checkout/internal/lock"
	"github.com/luikyv/franchise-checkout/internal/vindi"
)

var (
	Env                  = cmdutil.EnvValue("ENV", cmdutil.LocalEnvironment)
	Port                 = cmdutil.EnvValue("PORT", "8080")
	AWSEndpoint          = cmdutil.EnvValue("AWS_ENDPOINT_URL", "http://localhost:4566")
	DBSecretName         = cmdutil.EnvValue("DB_SECRET_NAME", "checkout/db-credentials")
	DBConnectionString   = cmdutil.EnvValue("DB_CONNECTION_STRING", "")
	VindiAPIKey          = cmdutil.EnvValue("VINDI_API_KEY", "")
	VindiAPIKeySSMParam  = cmdutil.EnvValue("VINDI_API_KEY_SSM_PARAM", "/checkout/vindi-api-key")
	VindiEnvironment     = cmdutil.EnvValue("VINDI_ENVIRONMENT", vindi.EnvironmentSandbox)
	VindiBaseURL         = cmdutil.EnvValue("VINDI_BASE_URL", "")
	PIXGatewayConnector  = cmdutil.EnvValue("PIX_GATEWAY_CONNECTOR", "pagarme")
	JWTSecret            = cmdutil.EnvValue("JWT_SECRET", "")
	RedisURL             = cmdutil.EnvValue("REDIS_URL", "")
	AllowedOrigins       = cmdutil.EnvValue("ALLOWED_ORIGINS", "*")
	GatewayClientTimeout = 30 * time.Second
)

var Handler http.Handler

func init() {
	ctx := context.Background()

	slog.SetDefault(cmdutil.Logger())

	awsConfig, err := cmdutil.AWSConfig(ctx, Env, AWSEndpoint)
	if err != nil {
		log.Fatal(err)
	}

	// Database.
	dsn := DBConnectionString
	if dsn == "" {
		slog.Info("creating secrets manager client")
		secretsClient := secretsmanager.NewFromConfig(*awsConfig)
		dsn, err = cmdutil.DSNFromSecret(ctx, secretsClient, DBSecretName)
		if err != nil {
			log.Fatalf("could not load database credentials: %v", err)
		}
	}
	db, err := cmdutil.DB(dsn)
	if err != nil {
		log.Fatalf("failed connecting to database: %v", err)
	}

	// Gateway.
	apiKey := VindiAPIKey
	if apiKey == "" {
		slog.Info("creating ssm client")
		ssmClient := ssm.NewFromConfig(*awsConfig)
		apiKey, err = cmdutil.ParameterFromSSM(ctx, ssmClient, VindiAPIKeySSMParam)
		if err != nil {
			log.Fatalf("could not load the gateway api key: %v", err)
		}
	}
	gateway := vindi.NewClient(vindi.Config{
		APIKey:      apiKey,
		Environment: VindiEnvironment,
		BaseURL:     VindiBaseURL,
		HTTPClient:  &http.Client{Timeout: GatewayClientTimeout},
	})

	// Lock.
	var locker lock.Locker = lock.NopLocker{}
	if RedisURL != "" {
		redisLocker, err := lock.NewRedisLockerFromURL(RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		locker = redisLocker
	} else {
		slog.Warn("REDIS_URL not set, concurrent payments for the same subscription are not serialized")
	}

	// Services.
	checkoutService := checkout.NewService(checkout.NewGormStorage(db), gateway, locker, PIXGatewayConnector)
	idempotencyService := idempotency.NewService(db)

	// Servers.
	mux := http.NewServeMux()
	checkout.NewServer(checkoutService, JWTSecret, idempotency.Middleware(idempotencyService)).RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = api.LoggingMiddleware(handler)
	handler = api.SecureMiddleware(Env.IsLocal())(handler)
	handler = api.CORSMiddleware(origins(AllowedOrigins))(handler)
	Handler = api.RequestIDMiddleware(handler)
}

func main() {
	slog.Info("starting checkout lambda", slog.String("env", string(Env)), slog.String("vindi_environment", string(VindiEnvironment)))

	if Env.IsLocal() {
		if err := http.ListenAndServe(":"+Port, Handler); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
		return
	}

	lambdaAdapter := httpadapter.NewV2(Handler)
	lambda.Start(lambdaAdapter.ProxyWithContext)
}

func origins(value string) []string {
	var out []string
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
