package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

var flagRunAddr string
var flagLogLevel string
var flagBackendURL string
var flagNotifyURL string
var flagAuthToken string
var flagAuth0ID string
var flagCheckConcurrency int
var flagRequestTimeout time.Duration

func parseFlags() {
	flag.StringVar(&flagRunAddr, "a", "localhost:8080", "address and port")
	flag.StringVar(&flagLogLevel, "l", "debug", "log level")
	flag.StringVar(&flagBackendURL, "b", "http://localhost:8081", "backend base URL")
	flag.StringVar(&flagNotifyURL, "n", "http://localhost:8083/", "notification endpoint URL")
	flag.StringVar(&flagAuthToken, "t", "", "bearer token")
	flag.StringVar(&flagAuth0ID, "u", "", "auth0 user id")
	flag.IntVar(&flagCheckConcurrency, "c", 8, "friendship check concurrency")
	flag.DurationVar(&flagRequestTimeout, "timeout", 5*time.Second, "backend request timeout")
	flag.Parse()

	if envRunAddr := os.Getenv("RUN_ADDR"); envRunAddr != "" {
		flagRunAddr = envRunAddr
	}

	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		flagLogLevel = envLogLevel
	}

	if envBackendURL := os.Getenv("BACKEND_URL"); envBackendURL != "" {
		flagBackendURL = envBackendURL
	}

	if envNotifyURL := os.Getenv("NOTIFY_URL"); envNotifyURL != "" {
		flagNotifyURL = envNotifyURL
	}

	if envAuthToken := os.Getenv("AUTH_TOKEN"); envAuthToken != "" {
		flagAuthToken = envAuthToken
	}

	if envAuth0ID := os.Getenv("AUTH0_ID"); envAuth0ID != "" {
		flagAuth0ID = envAuth0ID
	}

	if envCheckConcurrency := os.Getenv("CHECK_CONCURRENCY"); envCheckConcurrency != "" {
		if v, err := strconv.Atoi(envCheckConcurrency); err == nil {
			flagCheckConcurrency = v
		}
	}

	if envRequestTimeout := os.Getenv("REQUEST_TIMEOUT"); envRequestTimeout != "" {
		if v, err := time.ParseDuration(envRequestTimeout); err == nil {
			flagRequestTimeout = v
		}
	}
}
