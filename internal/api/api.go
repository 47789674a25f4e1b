package api

import (
	"errors"
	"net/http"

	"github.com/qfnu-tools/jwxt-relay/internal/api/relay"
	"github.com/qfnu-tools/jwxt-relay/internal/config"
	"github.com/qfnu-tools/jwxt-relay/internal/session"
)

// Service represents the relay API service
type Service struct {
	Config   *config.Config
	Sessions session.Storage
	relay    *relay.Service
}

// Startup starts up the relay API
func (service *Service) Startup(errs chan<- error) {
	relayService := &relay.Service{
		Config:   service.Config,
		Sessions: service.Sessions,
	}
	service.relay = relayService
	go func() {
		if err := relayService.Startup(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
}

// Shutdown shuts down the relay API
func (service *Service) Shutdown() {
	if service.relay != nil {
		service.relay.Shutdown()
		service.relay = nil
	}
}
