package transport

import (
	"fmt"

	"mediadash/config"
)

// NewDialer builds the dialer for the configured transport kind.
func NewDialer(cfg config.TransportConfig) (Dialer, error) {
	switch cfg.Kind {
	case config.TransportTCP:
		return NewTCPDialer(cfg.Host, cfg.Port, cfg.DialTimeout()), nil
	case config.TransportTelnet:
		return NewTelnetDialer(cfg.Host, cfg.Port, cfg.DialTimeout()), nil
	case config.TransportSerial:
		return NewSerialDialer(cfg.Serial.Device, cfg.Serial.Baud), nil
	case config.TransportMQTT:
		return NewMQTTDialer(cfg.MQTT.Broker, cfg.MQTT.StatusTopic, cfg.MQTT.CommandTopic, cfg.MQTT.ClientID, cfg.DialTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
