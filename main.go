package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	logger "github.com/sirupsen/logrus"

	"errortracker/src/bootstrap"
	"errortracker/src/database"
	"errortracker/src/handler"
	"errortracker/src/metrics"
	"errortracker/src/middleware"
	"errortracker/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	config := server.GetConfig()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pipeline, err := bootstrap.Build(bootstrap.LoadSettings(), database.MainDB, m, logger.WithField("component", "tracker"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to build error tracker")
	}
	if pipeline.LiveHub != nil {
		defer pipeline.LiveHub.Close()
	}

	router := server.NewRouter(server.Routes{
		Hook:           middleware.NewHook(pipeline.Tracker, config.MaxBodyBytes, logger.WithField("component", "middleware")),
		LiveHub:        pipeline.LiveHub,
		Gatherer:       reg,
		AdminTokenHash: config.AdminTokenHash,
		SearchErrors:   handler.DefaultSearchErrorsHandler(),
		GetError:       handler.DefaultGetErrorHandler(),
	})

	server.StartServer(config.Port, router)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
