// Package config implements the Config/Factory (C8): it loads the YAML
// configuration document, validates it, resolves outlet templates, and
// builds the runtime Devices the rest of the gateway operates on. Adapted
// from pkg/snmpcollector/config/loader.go's directory-walking,
// accumulate-all-errors idiom — generalized here from six independent
// config trees to one document plus one template directory.
package config

import (
	"fmt"
	"time"
)

// ErrConfig wraps every validation failure this package produces, so
// callers can distinguish "bad config" from other startup errors.
var ErrConfig = fmt.Errorf("config: invalid configuration")

// SerialConfig is the resolved "serial" section.
type SerialConfig struct {
	Device  string
	Timeout time.Duration
}

// RetryConfig is the resolved "snmp.retry" section.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Timeout     time.Duration
}

// HealthcheckConfig is the resolved "healthcheck" section.
type HealthcheckConfig struct {
	Frequency time.Duration
}

// PowerStatesConfig is the resolved global "power_states" section.
type PowerStatesConfig struct {
	CyDelay time.Duration
}

// DeviceSNMP is the resolved "devices.<name>.snmp" section: exactly one of
// V1V2/V3 is non-nil.
type DeviceSNMP struct {
	IPAddress string
	Port      uint16
	V1V2      *DeviceV1V2
	V3        *DeviceV3
}

// DeviceV1V2 is the resolved v1/v2c variant.
type DeviceV1V2 struct {
	MessageModel   string // "v1" or "v2c"
	ReadCommunity  string
	WriteCommunity string
}

// DeviceV3 is the resolved v3 variant, prior to security-level masking.
// This layer copies the fields as given and does not check that they are
// present; internal/transport owns nulling the unused fields for the wire
// based on SecurityLevel.
type DeviceV3 struct {
	Username      string
	SecurityLevel string
	AuthProtocol  string
	AuthKey       string
	PrivProtocol  string
	PrivKey       string
}

// DeviceConfig is one fully-resolved "devices.<name>" entry.
type DeviceConfig struct {
	Name        string
	Outlets     map[string]string // outlet name -> OID, already template-resolved
	PowerStates map[string]int    // verb -> wire value, already coerced to int
	SNMP        DeviceSNMP
}

// Config is the fully-resolved configuration document.
type Config struct {
	Serial      SerialConfig
	Retry       RetryConfig
	Healthcheck HealthcheckConfig
	PowerStates PowerStatesConfig
	Devices     map[string]DeviceConfig
}
