// @title Dexcom-Sync API
// @version 0.1.0
// @description Dexcom account connection and CGM readings synchronization for YourLoops
// @license.name BSD 2-Clause "Simplified" License
// @host api.android-qa.your-loops.dev
// @BasePath /dexcom
// @accept json
// @produce json
// @schemes https
// @contact.name Diabeloop
// #contact.url https://www.diabeloop.com
// @contact.email platforms@diabeloop.fr

// @securityDefinitions.apikey Auth0
// @in header
// @name Authorization
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tidepool-org/dexcom-sync/api"
	"github.com/tidepool-org/dexcom-sync/auth"
	"github.com/tidepool-org/dexcom-sync/config"
	"github.com/tidepool-org/dexcom-sync/dexcom"
	"github.com/tidepool-org/dexcom-sync/infrastructure"
	"github.com/tidepool-org/dexcom-sync/usecase"
	"github.com/tidepool-org/dexcom-sync/usecase/ratelimit"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidepool-org/go-common"
	"github.com/tidepool-org/go-common/clients"
	"github.com/tidepool-org/go-common/clients/disc"
	"github.com/tidepool-org/go-common/clients/mongo"
	muxprom "gitlab.com/msvechla/mux-prometheus/pkg/middleware"
)

type (
	// ServiceConfig holds the configuration for the `dexcom-sync` service
	ServiceConfig struct {
		clients.Config
		Service disc.ServiceListing `json:"service"`
		Mongo   mongo.Config        `json:"mongo"`
	}
)

func main() {
	var serviceConfig ServiceConfig
	logger := log.New(os.Stdout, api.DexcomAPIPrefix, log.LstdFlags|log.Lshortfile)

	if err := common.LoadEnvironmentConfig(
		[]string{"TIDEPOOL_DEXCOM_SYNC_SERVICE", "TIDEPOOL_DEXCOM_SYNC_ENV"},
		&serviceConfig,
	); err != nil {
		logger.Fatal("Problem loading config: ", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Problem loading the Dexcom config: ", err)
	}
	if !cfg.VendorConfigured() {
		logger.Print("DEXCOM_CLIENT_ID or DEXCOM_CLIENT_SECRET is empty, the account connection is disabled")
	}

	authSecret := os.Getenv("API_SECRET")
	if authSecret == "" {
		logger.Fatal("Env var API_SECRET is not provided or empty")
	}
	authClient, err := auth.NewClient(authSecret)
	if err != nil {
		logger.Fatal(err)
	}

	uploader := newUploader(cfg, logger)

	serviceConfig.Mongo.FromEnv()
	repository, err := infrastructure.NewDexcomMongoRepository(&serviceConfig.Mongo, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer repository.Close()
	repository.Start()

	/*
	 * Use cases
	 */
	vendor := dexcom.NewClient(dexcom.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		BaseURL:      cfg.BaseURL,
		Sandbox:      cfg.Sandbox,
		Location:     cfg.Location,
		HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
	})
	limiter := ratelimit.NewLimiter(logger, repository, ratelimit.Config{
		Ceiling:  cfg.RateLimitCeiling,
		Window:   cfg.RateLimitWindow,
		FailOpen: cfg.RateLimiterFailOpen,
	}, nil)
	health := usecase.NewHealthRecorder(logger, repository, nil)
	tokens := usecase.NewTokens(logger, repository, vendor, health, nil)
	oauthFlow := usecase.NewOAuthFlow(logger, vendor, repository, health, usecase.OAuthConfig{
		FrontendURL:       cfg.FrontendURL,
		PersistBestEffort: cfg.OAuthPersistBestEffort,
	}, nil)
	synchronizer := usecase.NewSynchronizer(logger, tokens, limiter, vendor, repository, repository, health, cfg.Location, nil)
	exporter := usecase.NewExporter(logger, repository, uploader, cfg.Location, nil)

	/*
	 * Instrumentation setup
	 */
	instrumentation := muxprom.NewCustomInstrumentation(true, "dblp", "dexcomsync", prometheus.DefBuckets, nil, prometheus.DefaultRegisterer)

	rtr := mux.NewRouter()
	rtr.Use(instrumentation.Middleware)
	rtr.Path("/metrics").Handler(promhttp.Handler())

	/*
	 * Dexcom-Api setup
	 */
	exportController := api.NewExportController(logger, exporter)
	dexcomAPI := api.InitAPI(exportController, tokens, oauthFlow, synchronizer, repository, authClient, logger)
	dexcomAPI.SetHandlers("", rtr)

	// ability to return compressed (gzip/deflate) responses if client browser accepts it
	gzipHandler := handlers.CompressHandler(rtr)

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	go synchronizer.RunSweeps(sweepCtx, cfg.SweepInterval)

	done := make(chan bool)
	server := common.NewServer(&http.Server{
		Addr:    serviceConfig.Service.GetPort(),
		Handler: gzipHandler,
	})

	var start func() error
	if serviceConfig.Service.Scheme == "https" {
		sslSpec := serviceConfig.Service.GetSSLSpec()
		start = func() error { return server.ListenAndServeTLS(sslSpec.CertFile, sslSpec.KeyFile) }
	} else {
		start = func() error { return server.ListenAndServe() }
	}
	if err := start(); err != nil {
		logger.Fatal(err)
	}

	// Wait for SIGINT (Ctrl+C) or SIGTERM to stop the service
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		stopSweeps()
		repository.Close()
		server.Close()
		done <- true
	}()

	<-done
}

// newUploader returns nil when no export bucket is configured
func newUploader(cfg *config.Config, logger *log.Logger) usecase.Uploader {
	if cfg.ExportBucketSuffix == "" {
		logger.Print("EXPORT_BUCKET_SUFFIX is empty, the reading export is disabled")
		return nil
	}

	url := cfg.S3EndpointURL
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if url != "" {
			logger.Println("Using custom s3 endpoint: ", url)
			return aws.Endpoint{
				PartitionID:       "aws",
				URL:               url,
				SigningRegion:     region,
				HostnameImmutable: true,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithEndpointResolverWithOptions(customResolver), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal(err)
	}
	uploader, err := infrastructure.NewS3Uploader(s3.NewFromConfig(awsCfg), cfg.ExportBucketSuffix)
	if err != nil {
		logger.Fatal(err)
	}
	return uploader
}
