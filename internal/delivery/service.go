// Package delivery exposes the event delivery API: events in, settled
// per-subscription outcomes out.
package delivery

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mixpanel/action-destinations-sub001/internal/core/storage"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
)

type Service struct {
	registry         *destination.Registry
	directives       *mapping.Evaluator
	store            storage.DeliveryStore
	maxBodySizeBytes int
	requestTimeout   time.Duration
}

func NewService(reg *destination.Registry, directives *mapping.Evaluator, store storage.DeliveryStore, maxBodySizeMB int, requestTimeout time.Duration) *Service {
	if reg == nil {
		panic("delivery: registry must not be nil")
	}
	if directives == nil {
		panic("delivery: directive evaluator must not be nil")
	}
	if store == nil {
		store = storage.NoopStore{}
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Service{
		registry:         reg,
		directives:       directives,
		store:            store,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		requestTimeout:   requestTimeout,
	}
}

// RegisterRoutes registers the delivery service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/destinations", s.ListDestinationsHandler)
	r.GET("/v1/deliveries", s.ListDeliveriesHandler)
	r.POST("/v1/destinations/:id/events", s.DeliverHandler)
	r.POST("/v1/destinations/:id/actions/:slug/autocomplete/:field", s.AutocompleteHandler)
	r.POST("/v1/mappings/preview", s.PreviewMappingHandler)
}
