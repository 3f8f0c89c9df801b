package main

import (
	"bitbucket.org/sotavant/cloudcord-client/internal/api"
	"bitbucket.org/sotavant/cloudcord-client/internal/logger"
	"bitbucket.org/sotavant/cloudcord-client/internal/social"
	"go.uber.org/zap"
	"net/http"
)

func main() {
	parseFlags()
	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	if err := logger.Initialize(flagLogLevel); err != nil {
		return err
	}

	client := api.NewClient(flagBackendURL, flagNotifyURL, api.StaticToken(flagAuthToken), flagRequestTimeout)
	session := social.NewSession(client, flagAuth0ID, flagCheckConcurrency)

	appInstance := newApp(client, session)

	logger.Log.Info("Running client facade",
		zap.String("address", flagRunAddr),
		zap.String("backend", flagBackendURL))

	mux := http.NewServeMux()
	mux.HandleFunc("/session/refresh", logger.RequestLogger(appInstance.refresh))
	mux.HandleFunc("/roster", logger.RequestLogger(appInstance.roster))
	mux.HandleFunc("/view", logger.RequestLogger(appInstance.view))
	mux.HandleFunc("/friends/add", logger.RequestLogger(appInstance.addFriend))
	mux.HandleFunc("/account/delete", logger.RequestLogger(appInstance.deleteAccount))
	mux.HandleFunc("/chat", logger.RequestLogger(appInstance.conversation))
	mux.HandleFunc("/chat/send", logger.RequestLogger(appInstance.sendMessage))

	return http.ListenAndServe(flagRunAddr, mux)
}
