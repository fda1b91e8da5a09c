// Package handlers implements the Intake API (C7): HTTP handlers for
// submission, status polling, token-gated download, edit operations and
// metadata, in the same shape as handlers.CatalystAPIHandlersCollection
// pattern (a struct of dependencies with httprouter.Handle-returning
// methods, e.g. handlers/ffmpeg.HandlersCollection, handlers/admin.go).
package handlers

import (
	"github.com/livepeer/dubworker/assets"
	"github.com/livepeer/dubworker/broker"
	"github.com/livepeer/dubworker/clients"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/store"
	"github.com/livepeer/dubworker/tokens"
	"github.com/livepeer/dubworker/video"
)

// Collection holds every collaborator an Intake API handler needs. It is
// constructed once in main.go and its methods are wired into the router
// (api.ListenAndServe).
type Collection struct {
	Cli      config.Cli
	Registry *registry.Registry
	Broker   *broker.Broker
	Store    *store.Store
	Assets   *assets.Store
	Tokens   *tokens.Service
	Prober   video.Prober
	EditOps  *clients.EditOps
}

func New(cli config.Cli, reg *registry.Registry, br *broker.Broker, st *store.Store, as *assets.Store, tk *tokens.Service, prober video.Prober) *Collection {
	return &Collection{
		Cli:      cli,
		Registry: reg,
		Broker:   br,
		Store:    st,
		Assets:   as,
		Tokens:   tk,
		Prober:   prober,
		EditOps:  clients.NewEditOps(),
	}
}
