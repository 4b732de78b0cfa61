package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Все поля имеют рабочие дефолты: без файла конфигурации процесс
// поднимается с ними.

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Sim      SimConfig      `yaml:"sim"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig параметры серверного процесса
type ServerConfig struct {
	Port        int    `yaml:"port"`         // KCP порт (надёжный канал); интенты идут на port+1
	MetricsPort int    `yaml:"metrics_port"` // Prometheus /metrics
	Passphrase  string `yaml:"passphrase"`   // Pre-shared ключ для AES шифрования транспорта
	IdleTimeout int    `yaml:"idle_timeout_seconds"`
}

// ClientConfig параметры клиентского процесса
type ClientConfig struct {
	IP         string  `yaml:"ip"`         // Адрес сервера
	Port       int     `yaml:"port"`       // KCP порт сервера
	Passphrase string  `yaml:"passphrase"` // Должен совпадать с серверным
	FrameRate  int     `yaml:"frame_rate"` // Частота кадрового цикла презентации
	InterpRate float64 `yaml:"interp_rate"` // Скорость сглаживания удалённых игроков (доля/сек)
}

// SimConfig параметры симуляции движения
type SimConfig struct {
	TickRate  int     `yaml:"tick_rate"`  // Тиков в секунду
	MoveSpeed float64 `yaml:"move_speed"` // Единиц в секунду, общая для всех игроков
}

// EventBusConfig настройки зеркалирования событий в NATS JetStream.
// Пустой URL — зеркалирование выключено, работает только in-memory шина.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// TracingConfig настройки OpenTelemetry (выключено по умолчанию)
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Дефолты протокола движения
const (
	DefaultPort        = 5000
	DefaultMetricsPort = 2112
	DefaultTickRate    = 64
	DefaultMoveSpeed   = 100.0
	DefaultFrameRate   = 60
	DefaultInterpRate  = 15.0
	DefaultIdleTimeout = 30
	DefaultIP          = "127.0.0.1"
	DefaultPassphrase  = "movesync-dev"
)

// GetPort возвращает порт сервера с поддержкой fallback значений
func (s *ServerConfig) GetPort() int {
	return getPortWithEnvFallback(s.Port, "MOVESYNC_PORT", DefaultPort)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "MOVESYNC_METRICS_PORT", DefaultMetricsPort)
}

// GetPassphrase возвращает ключевую фразу транспорта: config -> env -> default
func (s *ServerConfig) GetPassphrase() string {
	if s.Passphrase != "" {
		return s.Passphrase
	}
	if v := os.Getenv("MOVESYNC_PASSPHRASE"); v != "" {
		return v
	}
	return DefaultPassphrase
}

// GetIdleTimeout возвращает таймаут неактивности соединения в секундах
func (s *ServerConfig) GetIdleTimeout() int {
	if s.IdleTimeout > 0 {
		return s.IdleTimeout
	}
	return DefaultIdleTimeout
}

// GetIP возвращает адрес сервера для клиента
func (c *ClientConfig) GetIP() string {
	if c.IP != "" {
		return c.IP
	}
	if v := os.Getenv("MOVESYNC_IP"); v != "" {
		return v
	}
	return DefaultIP
}

// GetPort возвращает порт сервера для клиента
func (c *ClientConfig) GetPort() int {
	return getPortWithEnvFallback(c.Port, "MOVESYNC_PORT", DefaultPort)
}

// GetPassphrase возвращает ключевую фразу транспорта для клиента
func (c *ClientConfig) GetPassphrase() string {
	if c.Passphrase != "" {
		return c.Passphrase
	}
	if v := os.Getenv("MOVESYNC_PASSPHRASE"); v != "" {
		return v
	}
	return DefaultPassphrase
}

// GetFrameRate возвращает частоту кадрового цикла
func (c *ClientConfig) GetFrameRate() int {
	if c.FrameRate > 0 {
		return c.FrameRate
	}
	return DefaultFrameRate
}

// GetInterpRate возвращает скорость сглаживания удалённых игроков
func (c *ClientConfig) GetInterpRate() float64 {
	if c.InterpRate > 0 {
		return c.InterpRate
	}
	return DefaultInterpRate
}

// GetTickRate возвращает частоту тиков симуляции
func (s *SimConfig) GetTickRate() int {
	if s.TickRate > 0 {
		return s.TickRate
	}
	return DefaultTickRate
}

// GetMoveSpeed возвращает скорость движения
func (s *SimConfig) GetMoveSpeed() float64 {
	if s.MoveSpeed > 0 {
		return s.MoveSpeed
	}
	return DefaultMoveSpeed
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV MOVESYNC_CONFIG или возвращает
// пустой конфиг (работают дефолты).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MOVESYNC_CONFIG")
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
