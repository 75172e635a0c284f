package main

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/cantal-tech/jsonapi/auth"
	"github.com/cantal-tech/jsonapi/core"
	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/csql"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
	"github.com/cantal-tech/jsonapi/core/logger"
	"github.com/cantal-tech/jsonapi/core/notify"
	"github.com/cantal-tech/jsonapi/core/sqlstore"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres     string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	JwtKey       string `env:"JWT_KEY,required" description:"HMAC key for verifying bearer tokens"`
	JwtIssuer    string `env:"JWT_ISSUER,default=cantal" description:"expected token issuer"`
	KafkaBrokers string `env:"KAFKA_BROKERS,default=" description:"comma-separated kafka brokers for notifications; empty logs them instead"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=jsonapi-notifications" description:"kafka topic for notifications"`
	Port         string `env:"PORT,default=3000" description:"HTTP listen port"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, "basic")
	defer db.Close()

	registry := jsonapi.NewRegistry(auth.Definitions(nil)...)
	store := sqlstore.MustNew(&sqlstore.Builder{
		DB:       db,
		Registry: registry,
	})

	var notifier core.Notifier = notify.LogNotifier{}
	if service.KafkaBrokers != "" {
		kafkaNotifier := notify.NewKafkaNotifier(strings.Split(service.KafkaBrokers, ","), service.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	router := mux.NewRouter()
	router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
		Key:    []byte(service.JwtKey),
		Issuer: service.JwtIssuer,
	}))
	jsonapi.MustNew(&jsonapi.Builder{
		Registry:   registry,
		Store:      store,
		Router:     router,
		Notifier:   notifier,
		EnableCORS: true,
	})

	logger.Default().Infoln("listen on port :" + service.Port)
	http.ListenAndServe(":"+service.Port, router)
}
