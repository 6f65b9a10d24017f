package service

import (
	"context"
	"sync"

	"courier-dispatch/internal/general/config"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/general/logger"
	"courier-dispatch/internal/general/retry"
	"courier-dispatch/internal/ports"
)

// MessagePublisher abstracts the broker publish side. *rabbitmq.MQPublisher
// satisfies it.
type MessagePublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// MessageConsumer abstracts the broker consume side for the offer inbox.
// *rabbitmq.Client satisfies it.
type MessageConsumer interface {
	ConsumeJSON(ctx context.Context, queue, consumerTag string, prefetch int, handler func(context.Context, []byte) error) error
}

// DriverNotifier abstracts real-time pushes to the driver app.
// *websocket.WebSocket satisfies it.
type DriverNotifier interface {
	NotifyOffer(driverID string, offer contracts.WSDriverOffer) error
	NotifyDeliveryStatus(driverID, deliveryID, status string) error
	NotifyCancellation(driverID, deliveryID, reason string) error
	IsDriverConnected(driverID string) bool
}

// courierService holds all dependencies required by the Courier service.
type courierService struct {
	logger     *logger.Logger
	cfg        *config.Config
	uow        ports.UnitOfWork
	drivers    ports.DriverRepository
	deliveries ports.DeliveryRepository
	stops      ports.StopRepository
	feed       ports.ChangeFeed
	locations  ports.LocationCache
	pub        MessagePublisher
	consumer   MessageConsumer
	notifier   DriverNotifier
	retry      retry.Policy
	prefetch   int

	mu       sync.Mutex
	sessions map[string]*session

	// bgCtx scopes session loops and background consumers; set once in
	// StartBackground.
	bgCtx context.Context
}

// NewCourierService constructs the service with required dependencies.
func NewCourierService(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	drivers ports.DriverRepository,
	deliveries ports.DeliveryRepository,
	stops ports.StopRepository,
	feed ports.ChangeFeed,
	locations ports.LocationCache,
	pub MessagePublisher,
	consumer MessageConsumer,
	notifier DriverNotifier,
	prefetch int,
) ports.CourierService {
	if prefetch <= 0 {
		prefetch = 8
	}
	return &courierService{
		logger:     logger,
		cfg:        cfg,
		uow:        uow,
		drivers:    drivers,
		deliveries: deliveries,
		stops:      stops,
		feed:       feed,
		locations:  locations,
		pub:        pub,
		consumer:   consumer,
		notifier:   notifier,
		retry:      retry.Default(),
		prefetch:   prefetch,
		sessions:   make(map[string]*session),
		bgCtx:      context.Background(),
	}
}

// StartBackground runs startup session recovery, then launches the offer
// consumer and the change-feed listener. Blocks only for recovery; the
// consumers run until ctx is done.
func (service *courierService) StartBackground(ctx context.Context) error {
	service.mu.Lock()
	service.bgCtx = ctx
	service.mu.Unlock()

	if err := service.recoverSessions(ctx); err != nil {
		return err
	}

	go service.runOfferConsumer(ctx)
	go service.runChangeFeed(ctx)

	return nil
}
