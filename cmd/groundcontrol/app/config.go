package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/uav-ground-control/internal/engine"
)

const (
	defaultSystemID          = 255
	defaultComponentID       = 190
	defaultTargetSystemID    = 1
	defaultTargetComponentID = 1
	defaultSerialPort        = "/dev/ttyUSB0"
	defaultBaudRate          = 115200
	defaultSerialTimeout     = 5 * time.Second
	defaultListenerPort      = 14552
	defaultPeerHost          = "localhost"
	defaultPeerPort          = 14550
	defaultHistorySize       = 600
	defaultDataDirectory     = "data"
	defaultMetricsListen     = ":9108"
)

// Duration accepts either a Go duration string ("5s") or a bare integer
// number of milliseconds
type Duration time.Duration

func (d *Duration) parse(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v any
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v) * time.Millisecond)
		return nil
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("app.Duration: unsupported value %v", v)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings Settings        `yaml:"settings" json:"settings"`
	MAVLink  MAVLinkConfig   `yaml:"mavlink" json:"mavlink"`
	MAVProxy PeerConfig      `yaml:"mavproxy" json:"mavproxy"`
	Mission  MissionConfig   `yaml:"mission" json:"mission"`
	Vehicles []VehicleConfig `yaml:"vehicles" json:"vehicles"`
	Storage  StorageConfig   `yaml:"storage" json:"storage"`
	Metrics  MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel" json:"logLevel"`
}

// MAVLinkConfig identifies this station and the vehicle it talks to
type MAVLinkConfig struct {
	SystemID          uint8            `yaml:"systemId" json:"systemId"`
	ComponentID       uint8            `yaml:"componentId" json:"componentId"`
	TargetSystemID    uint8            `yaml:"targetSystemId" json:"targetSystemId"`
	TargetComponentID uint8            `yaml:"targetComponentId" json:"targetComponentId"`
	Serial            SerialConfig     `yaml:"serial" json:"serial"`
	UDP               UDPConfig        `yaml:"udp" json:"udp"`
	Simulation        SimulationConfig `yaml:"simulation" json:"simulation"`
}

type SerialConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Port     string   `yaml:"port" json:"port"`
	BaudRate int      `yaml:"baudrate" json:"baudrate"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
}

type UDPConfig struct {
	Listener ListenerConfig `yaml:"listener" json:"listener"`
}

// ListenerConfig is the UDP port ground stations send to. When disabled the
// bridge binds an ephemeral port and only reaches ground stations through
// the configured peer, which reply to that port.
type ListenerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

type SimulationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// PeerConfig is the default ground station address
type PeerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type MissionConfig struct {
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
}

type ExecutionConfig struct {
	DefaultSpeed  float64        `yaml:"defaultSpeed" json:"defaultSpeed"`
	StartPosition PositionConfig `yaml:"startPosition" json:"startPosition"`
	HistorySize   int            `yaml:"historySize" json:"historySize"`
}

type PositionConfig struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// VehicleConfig names a vehicle by its MAVLink system id
type VehicleConfig struct {
	Name     string `yaml:"name" json:"name"`
	SystemID uint8  `yaml:"systemId" json:"systemId"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// NewConfig returns the configuration used for omitted keys
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		MAVLink: MAVLinkConfig{
			SystemID:          defaultSystemID,
			ComponentID:       defaultComponentID,
			TargetSystemID:    defaultTargetSystemID,
			TargetComponentID: defaultTargetComponentID,
			Serial: SerialConfig{
				Port:     defaultSerialPort,
				BaudRate: defaultBaudRate,
				Timeout:  Duration(defaultSerialTimeout),
			},
			UDP:        UDPConfig{Listener: ListenerConfig{Port: defaultListenerPort}},
			Simulation: SimulationConfig{Enabled: true},
		},
		MAVProxy: PeerConfig{Host: defaultPeerHost, Port: defaultPeerPort},
		Mission: MissionConfig{
			Execution: ExecutionConfig{
				DefaultSpeed: engine.DefaultSpeed,
				StartPosition: PositionConfig{
					Latitude:  engine.DefaultStartPosition.Latitude,
					Longitude: engine.DefaultStartPosition.Longitude,
				},
				HistorySize: defaultHistorySize,
			},
		},
		Vehicles: []VehicleConfig{
			{Name: "scout", SystemID: 1},
			{Name: "delivery", SystemID: 2},
		},
		Storage: StorageConfig{DataDirectory: defaultDataDirectory},
		Metrics: MetricsConfig{Listen: defaultMetricsListen},
	}
}

// LoadConfig reads a YAML configuration file over the defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Live reports whether a real vehicle is attached over serial
func (c *Config) Live() bool {
	return c.MAVLink.Serial.Enabled && !c.MAVLink.Simulation.Enabled
}

// Mode names the operating mode
func (c *Config) Mode() string {
	if c.Live() {
		return "live"
	}
	return "simulation"
}

func (c *Config) Validate() error {
	return errors.Join(
		c.MAVLink.Validate(),
		c.MAVProxy.Validate(),
		c.Mission.Execution.Validate(),
		validateVehicles(c.Vehicles),
		c.Storage.Validate(),
		c.Metrics.Validate(),
	)
}

func (c *MAVLinkConfig) Validate() error {
	var errs []error
	if c.SystemID == 0 {
		errs = append(errs, errors.New("mavlink.systemId must not be 0"))
	}
	if c.TargetSystemID == 0 {
		errs = append(errs, errors.New("mavlink.targetSystemId must not be 0"))
	}
	if c.SystemID == c.TargetSystemID {
		errs = append(errs, fmt.Errorf("mavlink.systemId %d collides with the target system", c.SystemID))
	}
	if c.Serial.Enabled {
		if c.Serial.Port == "" {
			errs = append(errs, errors.New("mavlink.serial.port is required"))
		}
		if c.Serial.BaudRate <= 0 {
			errs = append(errs, fmt.Errorf("mavlink.serial.baudrate must be positive: %d", c.Serial.BaudRate))
		}
	}
	if c.Serial.Timeout < 0 {
		errs = append(errs, fmt.Errorf("mavlink.serial.timeout must not be negative: %s", c.Serial.Timeout))
	}
	if err := validatePort("mavlink.udp.listener.port", c.UDP.Listener.Port, true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *PeerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("mavproxy.host is required")
	}
	return validatePort("mavproxy.port", c.Port, false)
}

func (c *ExecutionConfig) Validate() error {
	var errs []error
	if c.DefaultSpeed <= 0 {
		errs = append(errs, fmt.Errorf("mission.execution.defaultSpeed must be positive: %v", c.DefaultSpeed))
	}
	if c.StartPosition.Latitude < -90 || c.StartPosition.Latitude > 90 {
		errs = append(errs, fmt.Errorf("mission.execution.startPosition.latitude out of range: %v", c.StartPosition.Latitude))
	}
	if c.StartPosition.Longitude < -180 || c.StartPosition.Longitude > 180 {
		errs = append(errs, fmt.Errorf("mission.execution.startPosition.longitude out of range: %v", c.StartPosition.Longitude))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("mission.execution.historySize must be positive: %d", c.HistorySize))
	}
	return errors.Join(errs...)
}

func validateVehicles(vehicles []VehicleConfig) error {
	var errs []error
	names := make(map[string]struct{}, len(vehicles))
	ids := make(map[uint8]struct{}, len(vehicles))
	for i, v := range vehicles {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("vehicles[%d].name is required", i))
		}
		if v.SystemID == 0 {
			errs = append(errs, fmt.Errorf("vehicles[%d].systemId must not be 0", i))
		}
		if _, ok := names[v.Name]; ok {
			errs = append(errs, fmt.Errorf("vehicles[%d]: duplicate name %q", i, v.Name))
		}
		if _, ok := ids[v.SystemID]; ok {
			errs = append(errs, fmt.Errorf("vehicles[%d]: duplicate systemId %d", i, v.SystemID))
		}
		names[v.Name] = struct{}{}
		ids[v.SystemID] = struct{}{}
	}
	return errors.Join(errs...)
}

func (c *StorageConfig) Validate() error {
	if c.Enabled && c.DataDirectory == "" {
		return errors.New("storage.dataDirectory is required")
	}
	return nil
}

func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errors.New("metrics.listen is required")
	}
	return nil
}

func validatePort(name string, port int, allowZero bool) error {
	if port == 0 && allowZero {
		return nil
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

// listenPort is the UDP port the bridge binds; 0 lets the system pick one
func (c *MAVLinkConfig) listenPort() int {
	if !c.UDP.Listener.Enabled {
		return 0
	}
	return c.UDP.Listener.Port
}

// vehicleNames maps system ids to the configured vehicle names
func (c *Config) vehicleNames() map[uint8]string {
	names := make(map[uint8]string, len(c.Vehicles))
	for _, v := range c.Vehicles {
		names[v.SystemID] = v.Name
	}
	return names
}
