// Package mqtt 把网关事件发布到 MQTT，并把命令主题上的控制指令交给网关。
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

// 可用性负载
const (
	Online  = "online"
	Offline = "offline"
)

// ErrTimeout 等待 broker 应答超时
var ErrTimeout = errors.New("mqtt: timed out waiting for broker")

func StateTopic(prefix, serial, topic string) string {
	return fmt.Sprintf("%s/%s/state/%s", prefix, serial, topic)
}

func AvailabilityTopic(prefix, serial string) string {
	return fmt.Sprintf("%s/%s/availability", prefix, serial)
}

func CommandTopic(prefix, serial string) string {
	return fmt.Sprintf("%s/%s/command", prefix, serial)
}

func EventTopic(prefix, serial string, cmd uint16) string {
	return fmt.Sprintf("%s/%s/event/%d", prefix, serial, cmd)
}

// BridgeTopic 网关进程自身的可用性主题，挂遗嘱消息
func BridgeTopic(prefix, clientID string) string {
	return fmt.Sprintf("%s/bridge/%s/availability", prefix, clientID)
}

// IntentFunc 控制指令处理函数
type IntentFunc func(ctx context.Context, in gateway.Intent) error

// Bridge MQTT 事件下游与命令入口
type Bridge struct {
	cfg    cfgpkg.MQTTConfig
	client paho.Client
	log    *zap.Logger

	mu         sync.Mutex
	onIntent   IntentFunc
	subscribed map[string]bool // serial -> 已订阅命令主题
}

// New 按配置创建 paho 客户端（尚未连接）
func New(cfg cfgpkg.MQTTConfig, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "evse-gateway-" + uuid.NewString()[:8]
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "evseMQTT"
	}
	b := &Bridge{cfg: cfg, log: logger, subscribed: make(map[string]bool)}

	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	opts.SetWill(BridgeTopic(cfg.TopicPrefix, cfg.ClientID), Offline, cfg.QoS, true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log.Warn("mqtt connection lost", zap.Error(err))
	})
	b.client = paho.NewClient(opts)
	return b
}

func brokerURL(broker string, port int) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if port == 0 {
		port = 1883
	}
	return "tcp://" + broker + ":" + strconv.Itoa(port)
}

// Connect 连接 broker，ctx 控制等待时长
func (b *Bridge) Connect(ctx context.Context) error {
	b.log.Info("connecting to mqtt broker", zap.String("broker", brokerURL(b.cfg.Broker, b.cfg.Port)), zap.String("client_id", b.cfg.ClientID))
	if err := wait(ctx, b.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// onConnect 首次连接与自动重连后：发布网关在线并恢复命令订阅
func (b *Bridge) onConnect(c paho.Client) {
	b.log.Info("connected to mqtt broker")
	c.Publish(BridgeTopic(b.cfg.TopicPrefix, b.cfg.ClientID), b.cfg.QoS, true, Online)

	b.mu.Lock()
	serials := make([]string, 0, len(b.subscribed))
	for s := range b.subscribed {
		serials = append(serials, s)
	}
	b.mu.Unlock()
	for _, s := range serials {
		c.Subscribe(CommandTopic(b.cfg.TopicPrefix, s), b.cfg.QoS, b.handleCommand)
	}
}

// OnIntent 设置控制指令处理函数
func (b *Bridge) OnIntent(fn IntentFunc) {
	b.mu.Lock()
	b.onIntent = fn
	b.mu.Unlock()
}

func (b *Bridge) Name() string { return "mqtt" }

// Connected 与 broker 的连接是否可用
func (b *Bridge) Connected() bool { return b.client.IsConnectionOpen() }

// Publish 实现 gateway.Sink
func (b *Bridge) Publish(ctx context.Context, ev gateway.Event) error {
	prefix := b.cfg.TopicPrefix
	switch ev.Kind {
	case gateway.KindState:
		return b.publishJSON(ctx, StateTopic(prefix, ev.Serial, ev.Topic), false, ev.Payload)
	case gateway.KindIdentity:
		return b.publishJSON(ctx, StateTopic(prefix, ev.Serial, "info"), true, ev.Payload)
	case gateway.KindCharge:
		return b.publishJSON(ctx, EventTopic(prefix, ev.Serial, ev.Cmd), false, ev.Payload)
	case gateway.KindAvailability:
		state := Offline
		if ev.Online {
			state = Online
		}
		if err := b.publish(ctx, AvailabilityTopic(prefix, ev.Serial), true, state); err != nil {
			return err
		}
		if ev.Online {
			return b.subscribe(ctx, ev.Serial)
		}
	}
	return nil
}

func (b *Bridge) publishJSON(ctx context.Context, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return b.publish(ctx, topic, retained, payload)
}

func (b *Bridge) publish(ctx context.Context, topic string, retained bool, payload any) error {
	b.log.Debug("mqtt publish", zap.String("topic", topic), zap.Bool("retained", retained))
	if err := wait(ctx, b.client.Publish(topic, b.cfg.QoS, retained, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// subscribe 设备就绪后订阅其命令主题（每个序列号一次）
func (b *Bridge) subscribe(ctx context.Context, serial string) error {
	b.mu.Lock()
	if b.subscribed[serial] {
		b.mu.Unlock()
		return nil
	}
	b.subscribed[serial] = true
	b.mu.Unlock()

	topic := CommandTopic(b.cfg.TopicPrefix, serial)
	if err := wait(ctx, b.client.Subscribe(topic, b.cfg.QoS, b.handleCommand)); err != nil {
		b.mu.Lock()
		delete(b.subscribed, serial)
		b.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	b.log.Info("subscribed to command topic", zap.String("topic", topic))
	return nil
}

func (b *Bridge) handleCommand(_ paho.Client, msg paho.Message) {
	b.log.Info("command received", zap.String("topic", msg.Topic()), zap.ByteString("payload", msg.Payload()))
	in, unknown, err := ParseIntent(msg.Payload())
	for _, k := range unknown {
		b.log.Warn("unknown command key ignored", zap.String("key", k))
	}
	if err != nil {
		b.log.Warn("invalid command payload", zap.Error(err))
	}
	if in.Empty() {
		return
	}

	b.mu.Lock()
	fn := b.onIntent
	b.mu.Unlock()
	if fn == nil {
		b.log.Warn("no intent handler, command dropped")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx, in); err != nil {
		b.log.Warn("command not applied", zap.Error(err))
	}
}

// Close 发布网关离线并断开
func (b *Bridge) Close() {
	if b.client.IsConnectionOpen() {
		t := b.client.Publish(BridgeTopic(b.cfg.TopicPrefix, b.cfg.ClientID), b.cfg.QoS, true, Offline)
		t.WaitTimeout(time.Second)
	}
	b.client.Disconnect(250)
}

// wait 等待 token 完成或 ctx 结束
func wait(ctx context.Context, t paho.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
