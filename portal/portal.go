package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/logging"
	"go.uber.org/zap"
	"net/url"
	"sync"
	"time"
)

// DefaultClientID is the MQTT client id used if none is configured.
const DefaultClientID = "gacha-arena"

// BaseTopic is the prefix for all topics of the arena.
const BaseTopic = "gacha/arena"

const mqttKeepAlive = 8

const disconnectTimeout = 3 * time.Second

const mqttQOS = 0

// Topic is an MQTT topic.
type Topic string

// Config is the config for the Base.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
	// ClientID is the MQTT client id. If not set, DefaultClientID is used.
	ClientID string
}

// Newsletter is used with Portal.Subscribe in order to subscribe to topics.
type Newsletter[payloadT any] struct {
	unregisterFn func()
	// Receive receives when a new message for the subscribed topic was received.
	// When the Newsletter is unsubscribed, the Receive-channel will be closed.
	Receive <-chan event.Event[payloadT]
}

// Unsubscribe cancels the subscription. Receive is closed afterwards.
func (sub *Newsletter[payload]) Unsubscribe() {
	sub.unregisterFn()
}

// publisher is used for publishing MQTT events.
type publisher interface {
	Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error)
}

// Base is a wrapper for all connection related stuff for a Portal. Using the
// Base, you only need to Open the Base and then use portals via NewPortal.
type Base interface {
	// Open the connection. Stays opened until the given context.Context is done.
	Open(ctx context.Context) error
	// NewPortal creates a new Portal that uses the connection from the Base.
	NewPortal(name string) Portal
	// NewUnpublishedPortal creates a Portal like NewPortal but its log entries are
	// never published. Use it for publishing log entries.
	NewUnpublishedPortal(name string) Portal
}

type basePortal struct {
	logger *zap.Logger
	config Config
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
	// gateway is responsible for registering subscription requests as well as
	// multiplexing and forwarding messages.
	gateway *portalGateway
	// bridge connects the gateway with the MQTT connection.
	bridge *portalGatewayMQTTBridge
	// mqttRouter routes incoming messages.
	mqttRouter *paho.StandardRouter
	// conn is the MQTT connection used for publishing. It is not set until Open
	// is called.
	conn publisher
	// connMutex locks conn.
	connMutex sync.RWMutex
}

type Portal interface {
	// Subscribe returns a Newsletter for the given Topic.
	Subscribe(ctx context.Context, topic Topic) *Newsletter[any]
	// Publish the given payload to the Topic. It will catch any errors during
	// publishing and log them using the Logger.
	Publish(ctx context.Context, topic Topic, payload interface{})
	// Logger is needed in order to provide error logging for Subscribe as generics
	// are not supported for methods.
	Logger() *zap.Logger
}

// NewBase creates a Base with the given Config. Open it with Base.Open.
// Portals can be created and subscribed to before opening.
func NewBase(logger *zap.Logger, config Config) (Base, error) {
	// Parse URL.
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "invalid mqtt addr", errors.Details{"was": config.MQTTAddr})
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	mqttRouter := paho.NewStandardRouter()
	bridge := &portalGatewayMQTTBridge{
		logger:        logger.Named("bridge"),
		inboundRouter: mqttRouter,
	}
	return &basePortal{
		logger:     logger,
		config:     config,
		brokerURL:  brokerURL,
		gateway:    newPortalGateway(logger.Named("gateway"), bridge),
		bridge:     bridge,
		mqttRouter: mqttRouter,
	}, nil
}

// Open the base portal and keep the connection to the MQTT server until the
// given context.Context is done.
func (p *basePortal) Open(ctx context.Context) error {
	conn, err := autopaho.NewConnection(ctx, p.genClientConfig(p.mqttRouter))
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "connect to mqtt server", errors.Details{"addr": p.config.MQTTAddr})
	}
	p.setConn(conn)
	<-ctx.Done()
	p.bridge.setKiosk(nil)
	p.setConn(nil)
	disconnectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	if err = conn.Disconnect(disconnectCtx); err != nil {
		return errors.NewInternalErrorFromErr(err, "disconnect from mqtt server", nil)
	}
	return nil
}

func (p *basePortal) setConn(conn publisher) {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()
	p.conn = conn
}

// Publish sends the message over the current connection. It fails with
// errors.ErrCommunication while disconnected.
func (p *basePortal) Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error) {
	p.connMutex.RLock()
	conn := p.conn
	p.connMutex.RUnlock()
	if conn == nil {
		return nil, errors.FromErr("not connected to mqtt server", errors.ErrCommunication, nil,
			errors.Details{"topic": publish.Topic})
	}
	return conn.Publish(ctx, publish)
}

// genClientConfig generates the autopaho.ClientConfig that is ready to launch
// and will use the given paho.Router.
func (p *basePortal) genClientConfig(router paho.Router) autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{p.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt server connection established")
			// Subscriptions do not survive reconnects.
			p.bridge.setKiosk(cm)
			p.bridge.subscribeTopics(p.gateway.topics()...)
		},
		OnConnectError: func(err error) {
			errors.Log(p.logger, errors.Error{
				Code:    errors.ErrCommunication,
				Err:     err,
				Message: "mqtt server connection failed",
			})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.config.ClientID,
			Router:   router,
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := fmt.Sprintf("reason code %d", disconnect.ReasonCode)
				if disconnect.Properties != nil {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Message: fmt.Sprintf("mqtt server requested disconnect: %s", reason),
				})
			},
			OnClientError: func(err error) {
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "mqtt server connection client error",
				})
			},
		},
	}
}

// NewPortal creates a new Portal that can be used to subscribe to topics and
// events.
func (p *basePortal) NewPortal(name string) Portal {
	return &portal{
		logger:    p.logger.Named(name),
		gateway:   p.gateway,
		publisher: p,
	}
}

// NewUnpublishedPortal creates a Portal whose log entries are marked with
// logging.NoPublish.
func (p *basePortal) NewUnpublishedPortal(name string) Portal {
	return &portal{
		logger:    logging.NoPublish(p.logger.Named(name)),
		gateway:   p.gateway,
		publisher: p,
	}
}

// Subscribe subscribes at the Portal and decodes each payload into payloadT.
// Messages that cannot be decoded are logged to Portal.Logger and skipped.
func Subscribe[payloadT any](ctx context.Context, portal Portal, topic Topic) *Newsletter[payloadT] {
	raw := portal.Subscribe(ctx, topic)
	decoded := make(chan event.Event[payloadT])
	go func() {
		defer close(decoded)
		for e := range raw.Receive {
			var payload payloadT
			if err := json.Unmarshal(e.Publish.Payload, &payload); err != nil {
				errors.Log(portal.Logger(), errors.Error{
					Code:    errors.ErrProtocolViolation,
					Kind:    errors.KindDecodeJSON,
					Err:     err,
					Message: "decode payload",
					Details: errors.Details{"topic": e.Publish.Topic, "payload": string(e.Publish.Payload)},
				})
				continue
			}
			select {
			case <-ctx.Done():
				return
			case decoded <- event.Event[payloadT]{Publish: e.Publish, Payload: payload}:
			}
		}
	}()
	return &Newsletter[payloadT]{
		unregisterFn: raw.unregisterFn,
		Receive:      decoded,
	}
}

// portal provides a higher-level API for Base that makes it easier to conduct
// tests, etc.
type portal struct {
	logger *zap.Logger
	// gateway is used for subscribing to MQTT topics via Subscribe.
	gateway *portalGateway
	// publisher is used for publishing MQTT messages via Publish.
	publisher publisher
}

// Subscribe for the given Topic using the portal's gateway.
func (p *portal) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	subLifetime, cancelSub := context.WithCancel(ctx)
	return &Newsletter[any]{
		unregisterFn: cancelSub,
		Receive:      p.gateway.subscribe(subLifetime, topic),
	}
}

// Publish the given payload to the Topic.
func (p *portal) Publish(ctx context.Context, topic Topic, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		errors.Log(p.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "encode payload",
			Details: errors.Details{"topic": topic},
		})
		return
	}
	_, err = p.publisher.Publish(ctx, &paho.Publish{Topic: string(topic), QoS: mqttQOS, Payload: raw})
	if err != nil {
		errors.Log(p.logger, errors.Wrap(err, "publish", errors.Details{"topic": topic}))
	}
}

// Logger returns the portal's logger.
func (p *portal) Logger() *zap.Logger {
	return p.logger
}
