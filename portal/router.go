package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/event"
	"go.uber.org/zap"
	"sync"
	"time"
)

// kioskTimeout is the timeout for subscribing and unsubscribing at the MQTT
// server.
const kioskTimeout = 5 * time.Second

// mqttKiosk subscribes and unsubscribes topics at the MQTT server.
type mqttKiosk interface {
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error)
}

// mqttInboundRouter abstracts paho.Router with only stuff that is needed for
// portalGateway.
type mqttInboundRouter interface {
	RegisterHandler(topic string, handler paho.MessageHandler)
	UnregisterHandler(topic string)
}

// portalGatewayMQTTBridge connects the portalGateway to the MQTT connection.
type portalGatewayMQTTBridge struct {
	logger *zap.Logger
	// kiosk is used for subscriptions at the MQTT server. It is not set until the
	// connection is established.
	kiosk mqttKiosk
	// kioskMutex locks kiosk.
	kioskMutex sync.RWMutex
	// inboundRouter routes received messages to handlers.
	inboundRouter mqttInboundRouter
}

// setKiosk sets the kiosk to use for future subscriptions.
func (bridge *portalGatewayMQTTBridge) setKiosk(kiosk mqttKiosk) {
	bridge.kioskMutex.Lock()
	defer bridge.kioskMutex.Unlock()
	bridge.kiosk = kiosk
}

// subscribeTopics subscribes the given topics at the MQTT server. If not
// connected, this is skipped as all topics are subscribed when the connection
// is established.
func (bridge *portalGatewayMQTTBridge) subscribeTopics(topics ...Topic) {
	bridge.kioskMutex.RLock()
	defer bridge.kioskMutex.RUnlock()
	if bridge.kiosk == nil || len(topics) == 0 {
		return
	}
	subscriptions := make(map[string]paho.SubscribeOptions, len(topics))
	for _, topic := range topics {
		subscriptions[string(topic)] = paho.SubscribeOptions{QoS: mqttQOS}
	}
	ctx, cancel := context.WithTimeout(context.Background(), kioskTimeout)
	defer cancel()
	_, err := bridge.kiosk.Subscribe(ctx, &paho.Subscribe{Subscriptions: subscriptions})
	if err != nil {
		errors.Log(bridge.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "subscribe at mqtt server",
			Details: errors.Details{"topics": topics},
		})
	}
}

// unsubscribeTopic unsubscribes the given topic at the MQTT server.
func (bridge *portalGatewayMQTTBridge) unsubscribeTopic(topic Topic) {
	bridge.kioskMutex.RLock()
	defer bridge.kioskMutex.RUnlock()
	if bridge.kiosk == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), kioskTimeout)
	defer cancel()
	_, err := bridge.kiosk.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{string(topic)}})
	if err != nil {
		errors.Log(bridge.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "unsubscribe at mqtt server",
			Details: errors.Details{"topic": topic},
		})
	}
}

// subscription is a container for the lifetime context.Context and the channel
// to forward the received paho.Publish message to.
type subscription struct {
	lifetime context.Context
	forward  chan<- event.Event[any]
}

// registeredHandler is a container for subscriptions to serve.
type registeredHandler struct {
	// subscriptions contains all active subscriptions that are served by the
	// handler.
	subscriptions map[*subscription]struct{}
	// subscriptionsMutex locks subscriptions. It is held while forwarding, so
	// that forward channels are not closed meanwhile.
	subscriptionsMutex sync.RWMutex
}

// Handler returns a paho.MessageHandler that forwards to all subscriptions for
// the handler.
func (handler *registeredHandler) Handler() paho.MessageHandler {
	return func(publish *paho.Publish) {
		var allForwarded sync.WaitGroup
		handler.subscriptionsMutex.RLock()
		defer handler.subscriptionsMutex.RUnlock()
		for sub := range handler.subscriptions {
			allForwarded.Add(1)
			go func(sub *subscription) {
				defer allForwarded.Done()
				select {
				case <-sub.lifetime.Done():
				case sub.forward <- event.Event[any]{Publish: publish}:
				}
			}(sub)
		}
		allForwarded.Wait()
	}
}

// portalGateway is used for multiplexing MQTT subscriptions and forwarding
// received messages according to them.
type portalGateway struct {
	logger *zap.Logger
	// bridge is used for MQTT subscriptions and routing.
	bridge *portalGatewayMQTTBridge
	// registeredHandlers holds all handlers by subscribed topics.
	registeredHandlers map[Topic]*registeredHandler
	// registeredHandlersMutex locks registeredHandlers.
	registeredHandlersMutex sync.Mutex
}

func newPortalGateway(logger *zap.Logger, bridge *portalGatewayMQTTBridge) *portalGateway {
	return &portalGateway{
		logger:             logger,
		bridge:             bridge,
		registeredHandlers: make(map[Topic]*registeredHandler),
	}
}

// subscribe for the given Topic and forward messages to the returned channel
// until the context.Context is done. Then, the channel is closed.
func (gateway *portalGateway) subscribe(lifetime context.Context, topic Topic) <-chan event.Event[any] {
	gateway.registeredHandlersMutex.Lock()
	defer gateway.registeredHandlersMutex.Unlock()
	forward := make(chan event.Event[any])
	handlerRef, ok := gateway.registeredHandlers[topic]
	if !ok {
		handlerRef = &registeredHandler{subscriptions: make(map[*subscription]struct{})}
		gateway.registeredHandlers[topic] = handlerRef
		gateway.bridge.inboundRouter.RegisterHandler(string(topic), handlerRef.Handler())
		gateway.bridge.subscribeTopics(topic)
		gateway.logger.Debug("subscribed to topic", zap.Any("topic", topic))
	}
	sub := &subscription{
		lifetime: lifetime,
		forward:  forward,
	}
	handlerRef.subscriptionsMutex.Lock()
	handlerRef.subscriptions[sub] = struct{}{}
	handlerRef.subscriptionsMutex.Unlock()
	go func() {
		<-lifetime.Done()
		gateway.unsubscribe(topic, sub)
	}()
	return forward
}

// topics returns all topics with active subscriptions.
func (gateway *portalGateway) topics() []Topic {
	gateway.registeredHandlersMutex.Lock()
	defer gateway.registeredHandlersMutex.Unlock()
	topics := make([]Topic, 0, len(gateway.registeredHandlers))
	for topic := range gateway.registeredHandlers {
		topics = append(topics, topic)
	}
	return topics
}

// unsubscribe the given subscription for the Topic and close its forward
// channel. Only portalGateway should call this!
func (gateway *portalGateway) unsubscribe(topic Topic, sub *subscription) {
	gateway.registeredHandlersMutex.Lock()
	defer gateway.registeredHandlersMutex.Unlock()
	handler, ok := gateway.registeredHandlers[topic]
	if !ok {
		errors.Log(gateway.logger, errors.NewInternalError("unsubscribe called for unknown registered handler",
			errors.Details{"topic": topic}))
		return
	}
	handler.subscriptionsMutex.Lock()
	defer handler.subscriptionsMutex.Unlock()
	if _, ok := handler.subscriptions[sub]; !ok {
		errors.Log(gateway.logger, errors.NewInternalError("unsubscribe with unknown subscription for handler",
			errors.Details{"topic": topic}))
		return
	}
	delete(handler.subscriptions, sub)
	if sub.forward != nil {
		close(sub.forward)
	}
	if len(handler.subscriptions) > 0 {
		return
	}
	delete(gateway.registeredHandlers, topic)
	gateway.bridge.inboundRouter.UnregisterHandler(string(topic))
	gateway.bridge.unsubscribeTopic(topic)
	gateway.logger.Debug("unsubscribed from topic", zap.Any("topic", topic))
}
