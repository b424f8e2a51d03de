package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/audit/kafkasink"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/jrsteele09/go-identity-core/service"
	"github.com/jrsteele09/go-identity-core/token/refresh"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAuditSink(audit.NewZerologSink(logger)),
	}

	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		opts = append(opts, service.WithRefreshRepo(refresh.NewRedisRepo(client)))
		logger.Info().Str("addr", addr).Msg("using redis refresh token store")
	}

	if publisher := kafkasink.New(c.GetKafkaBrokers(), c.GetKafkaAuditTopic()); publisher != nil {
		opts = append(opts, service.WithAuditSink(publisher))
		logger.Info().Str("topic", c.GetKafkaAuditTopic()).Msg("publishing audit events to kafka")
	}

	core, err := service.New(c, opts...)
	if err != nil {
		return err
	}
	logger.Info().Msg("identity core started")

	waitForStopSignal()
	logger.Info().Msg("shutting down")
	return core.Close()
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
