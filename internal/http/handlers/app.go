package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"recreator/internal/domain"
	"recreator/internal/infra"
	"recreator/internal/queue"
)

// App holds the collaborators shared by every handler.
type App struct {
	Store         domain.BatchStore
	Dispatcher    queue.Dispatcher
	CostPerSecond float64
	Logger        *infra.Logger
	// Ready reports backing service health for /v1/healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewApp(store domain.BatchStore, dispatcher queue.Dispatcher, costPerSecond float64, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{Store: store, Dispatcher: dispatcher, CostPerSecond: costPerSecond, Logger: logger}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
