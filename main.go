package main

import (
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/substore/store-backend/api"
	"github.com/substore/store-backend/catalog"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/notifications"
	"github.com/substore/store-backend/notifications/smtp"
	"github.com/substore/store-backend/payments"
	"go.vocdoni.io/dvote/log"
)

func main() {
	log.Init("debug", "stdout", nil)
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.StringP("secret", "s", "", "API secret")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "store-backend", "The name of the MongoDB database")
	flag.StringP("web-app-url", "w", "http://localhost:3000", "The URL of the web application")
	flag.String("stripe-api-key", "", "Stripe API secret key")
	flag.String("stripe-webhook-secret", "", "Stripe webhook signing secret")
	flag.String("smtp-server", "", "SMTP server")
	flag.Int("smtp-port", 587, "SMTP port")
	flag.String("smtp-username", "", "SMTP username")
	flag.String("smtp-password", "", "SMTP password")
	flag.String("email-from-address", "", "Email service from address")
	flag.String("email-from-name", "Subscription Store", "Email service from name")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("STORE")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	if secret == "" {
		log.Fatal("secret is required")
	}
	mongoURL := viper.GetString("mongo-url")
	mongoDB := viper.GetString("mongo-db")
	webAppURL := viper.GetString("web-app-url")
	stripeAPIKey := viper.GetString("stripe-api-key")
	stripeWebhookSecret := viper.GetString("stripe-webhook-secret")
	smtpServer := viper.GetString("smtp-server")
	smtpPort := viper.GetInt("smtp-port")
	smtpUsername := viper.GetString("smtp-username")
	smtpPassword := viper.GetString("smtp-password")
	emailFromAddress := viper.GetString("email-from-address")
	emailFromName := viper.GetString("email-from-name")
	// initialize the MongoDB database
	database, err := db.New(mongoURL, mongoDB)
	if err != nil {
		log.Fatalf("could not create the MongoDB database: %v", err)
	}
	defer database.Close()
	// load the subscription plan catalog
	plans, err := catalog.New()
	if err != nil {
		log.Fatalf("could not load the plan catalog: %v", err)
	}
	// create the email service if the SMTP configuration is provided
	var mailService notifications.NotificationService
	if smtpServer != "" && emailFromAddress != "" {
		mailService = new(smtp.Email)
		if err := mailService.New(&smtp.Config{
			FromName:     emailFromName,
			FromAddress:  emailFromAddress,
			SMTPUsername: smtpUsername,
			SMTPPassword: smtpPassword,
			SMTPServer:   smtpServer,
			SMTPPort:     smtpPort,
		}); err != nil {
			log.Fatalf("could not create the email service: %v", err)
		}
		log.Infow("email service created", "server", smtpServer, "from", emailFromAddress)
	} else {
		log.Warn("no SMTP configuration provided, order receipts disabled")
	}
	// create the payment processor client if the Stripe keys are provided
	var processor payments.Processor
	if stripeAPIKey != "" && stripeWebhookSecret != "" {
		processor = payments.NewClient(&payments.Config{
			APIKey:        stripeAPIKey,
			WebhookSecret: stripeWebhookSecret,
		})
	} else {
		log.Warn("no Stripe configuration provided, payment endpoints will be unavailable")
	}
	paymentService, err := payments.New(processor, database, plans, mailService)
	if err != nil {
		log.Fatalf("could not create the payment service: %v", err)
	}
	defer paymentService.Close()
	// create the local API server
	api.New(&api.Config{
		Host:      host,
		Port:      port,
		Secret:    secret,
		DB:        database,
		Catalog:   plans,
		Payments:  paymentService,
		WebAppURL: webAppURL,
	}).Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
