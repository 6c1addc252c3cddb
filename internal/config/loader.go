package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// templateNamePattern validates an outlet template name.
var templateNamePattern = regexp.MustCompile(`^[A-Za-z0-9]+([-_][A-Za-z0-9]+)*$`)

// ─────────────────────────────────────────────────────────────────────────────
// Raw YAML shape
// ─────────────────────────────────────────────────────────────────────────────

type rawDocument struct {
	Serial      rawSerial                `yaml:"serial"`
	Retry       rawRetry                 `yaml:"snmp.retry"`
	Healthcheck rawHealthcheck           `yaml:"healthcheck"`
	PowerStates rawGlobalPowerStates     `yaml:"power_states"`
	Devices     map[string]rawDevice     `yaml:"devices"`
	SNMPDevices rawSNMPDevices           `yaml:"snmp.devices"`
}

type rawSerial struct {
	Device  string `yaml:"device"`
	Timeout int     `yaml:"timeout"`
}

type rawRetry struct {
	MaxAttempts int `yaml:"max_attempts"`
	Delay       int `yaml:"delay"`
	Timeout     int `yaml:"timeout"`
}

type rawHealthcheck struct {
	Frequency int `yaml:"frequency"`
}

type rawGlobalPowerStates struct {
	CyDelay int `yaml:"cy_delay"`
}

type rawDevice struct {
	Outlets     yaml.Node              `yaml:"outlets"`
	PowerStates map[string]interface{} `yaml:"power_states"`
	SNMP        rawDeviceSNMP          `yaml:"snmp"`
}

type rawDeviceSNMP struct {
	IPAddress string           `yaml:"ip_address"`
	Port      int              `yaml:"port"`
	V1        *rawCommunityPair `yaml:"v1"`
	V2        *rawCommunityPair `yaml:"v2"`
	V3        *rawV3            `yaml:"v3"`
}

type rawCommunityPair struct {
	ReadCommunity  string `yaml:"read_community"`
	WriteCommunity string `yaml:"write_community"`
}

type rawV3 struct {
	Username      string `yaml:"username"`
	SecurityLevel string `yaml:"security_level"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthKey       string `yaml:"auth_key"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivKey       string `yaml:"priv_key"`
}

type rawSNMPDevices struct {
	Path   string                       `yaml:"path"`
	Custom map[string]map[string]string `yaml:"custom"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads the YAML document at path, validates it, resolves outlet
// templates, and returns a fully-resolved Config. Errors from individual
// devices are accumulated and returned together so operators see every
// problem in one pass.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConfig, path, err)
	}
	defer f.Close()

	var raw rawDocument
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}

	if raw.Serial.Device == "" {
		return nil, fmt.Errorf("%w: serial.device is required", ErrConfig)
	}

	cfg := &Config{
		Serial: SerialConfig{
			Device:  raw.Serial.Device,
			Timeout: time.Duration(raw.Serial.Timeout) * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: raw.Retry.MaxAttempts,
			Delay:       time.Duration(raw.Retry.Delay) * time.Second,
			Timeout:     time.Duration(raw.Retry.Timeout) * time.Second,
		},
		Healthcheck: HealthcheckConfig{
			Frequency: time.Duration(raw.Healthcheck.Frequency) * time.Second,
		},
		PowerStates: PowerStatesConfig{
			CyDelay: time.Duration(raw.PowerStates.CyDelay) * time.Second,
		},
		Devices: make(map[string]DeviceConfig, len(raw.Devices)),
	}

	var errs []string
	for name, rd := range raw.Devices {
		dc, err := resolveDevice(name, rd, raw.SNMPDevices)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		cfg.Devices[name] = dc
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %d device error(s):\n  %s", ErrConfig, len(errs), strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Device resolution
// ─────────────────────────────────────────────────────────────────────────────

func resolveDevice(name string, rd rawDevice, sd rawSNMPDevices) (DeviceConfig, error) {
	outlets, err := resolveOutlets(name, rd.Outlets, sd)
	if err != nil {
		return DeviceConfig{}, err
	}
	if len(outlets) == 0 {
		return DeviceConfig{}, fmt.Errorf("%w: device %q: outlets must not be empty", ErrConfig, name)
	}

	powerStates, err := coercePowerStates(name, rd.PowerStates)
	if err != nil {
		return DeviceConfig{}, err
	}

	snmpCfg, err := resolveSNMP(name, rd.SNMP)
	if err != nil {
		return DeviceConfig{}, err
	}

	return DeviceConfig{
		Name:        name,
		Outlets:     outlets,
		PowerStates: powerStates,
		SNMP:        snmpCfg,
	}, nil
}

// resolveOutlets implements outlet template resolution: an inline map is
// used directly; a string is validated against templateNamePattern and
// resolved first against the inline custom map, then against
// <path>/<template>.yaml on disk.
func resolveOutlets(device string, node yaml.Node, sd rawSNMPDevices) (map[string]string, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: device %q: outlets: %v", ErrConfig, device, err)
		}
		return m, nil

	case yaml.ScalarNode:
		var templateName string
		if err := node.Decode(&templateName); err != nil {
			return nil, fmt.Errorf("%w: device %q: outlets: %v", ErrConfig, device, err)
		}
		return resolveTemplate(device, templateName, sd)

	default:
		return nil, fmt.Errorf("%w: device %q: outlets must be a map or a template name", ErrConfig, device)
	}
}

func resolveTemplate(device, templateName string, sd rawSNMPDevices) (map[string]string, error) {
	if !templateNamePattern.MatchString(templateName) {
		return nil, fmt.Errorf("%w: device %q: template name %q does not match %s", ErrConfig, device, templateName, templateNamePattern.String())
	}

	if m, ok := sd.Custom[templateName]; ok {
		return m, nil
	}

	if sd.Path != "" {
		path := filepath.Join(sd.Path, templateName+".yaml")
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			var m map[string]string
			dec := yaml.NewDecoder(f)
			decErr := dec.Decode(&m)
			if decErr == nil {
				return m, nil
			}
			return nil, fmt.Errorf("%w: device %q: template file %s: %v", ErrConfig, device, path, decErr)
		}
	}

	return nil, fmt.Errorf("%w: device %q: template %q found in neither custom map nor template directory", ErrConfig, device, templateName)
}

// coercePowerStates coerces every power_states value to an integer: YAML
// may supply either a native integer or a numeric string. A value that
// coerces to neither is a config error.
func coercePowerStates(device string, raw map[string]interface{}) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for verb, v := range raw {
		if verb == "" {
			return nil, fmt.Errorf("%w: device %q: power_states has an empty key", ErrConfig, device)
		}
		n, err := coerceInt(v)
		if err != nil {
			return nil, fmt.Errorf("%w: device %q: power_states[%q]: %v", ErrConfig, device, verb, err)
		}
		out[verb] = n
	}
	return out, nil
}

func coerceInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not coercible to an integer", v, v)
	}
}

// resolveSNMP validates that exactly one of v1, v2, v3 is present and
// converts the raw variant into DeviceSNMP.
func resolveSNMP(device string, raw rawDeviceSNMP) (DeviceSNMP, error) {
	count := 0
	if raw.V1 != nil {
		count++
	}
	if raw.V2 != nil {
		count++
	}
	if raw.V3 != nil {
		count++
	}
	if count != 1 {
		return DeviceSNMP{}, fmt.Errorf("%w: device %q: exactly one of v1/v2/v3 must be present, got %d", ErrConfig, device, count)
	}

	out := DeviceSNMP{
		IPAddress: raw.IPAddress,
		Port:      uint16(raw.Port),
	}
	if out.Port == 0 {
		out.Port = 161
	}

	switch {
	case raw.V1 != nil:
		out.V1V2 = &DeviceV1V2{MessageModel: "v1", ReadCommunity: raw.V1.ReadCommunity, WriteCommunity: raw.V1.WriteCommunity}
	case raw.V2 != nil:
		out.V1V2 = &DeviceV1V2{MessageModel: "v2c", ReadCommunity: raw.V2.ReadCommunity, WriteCommunity: raw.V2.WriteCommunity}
	case raw.V3 != nil:
		out.V3 = &DeviceV3{
			Username:      raw.V3.Username,
			SecurityLevel: raw.V3.SecurityLevel,
			AuthProtocol:  raw.V3.AuthProtocol,
			AuthKey:       raw.V3.AuthKey,
			PrivProtocol:  raw.V3.PrivProtocol,
			PrivKey:       raw.V3.PrivKey,
		}
	}

	return out, nil
}
