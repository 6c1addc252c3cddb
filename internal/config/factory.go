package config

import (
	"fmt"
	"sort"

	"github.com/vpbank/rs232gw/internal/device"
	"github.com/vpbank/rs232gw/internal/transport"
)

// BuildDevices constructs one transport.SNMPTransport and device.Device per
// entry of cfg.Devices, connecting each transport eagerly. This is the
// Factory half of C8: Load parses and validates, BuildDevices wires the
// runtime objects the rest of the gateway depends on.
func BuildDevices(cfg *Config) (map[string]*device.Device, error) {
	devices := make(map[string]*device.Device, len(cfg.Devices))

	names := make([]string, 0, len(cfg.Devices))
	for name := range cfg.Devices {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dc := cfg.Devices[name]

		tcfg := transport.Config{
			IPAddress:         dc.SNMP.IPAddress,
			UDPPort:           dc.SNMP.Port,
			OutletOIDs:        dc.Outlets,
			PerAttemptTimeout: int(cfg.Retry.Timeout.Seconds()),
			MaxAttempts:       cfg.Retry.MaxAttempts,
		}
		if dc.SNMP.V1V2 != nil {
			tcfg.V1V2 = &transport.V1V2Config{
				MessageModel:   transport.MessageModel(dc.SNMP.V1V2.MessageModel),
				ReadCommunity:  dc.SNMP.V1V2.ReadCommunity,
				WriteCommunity: dc.SNMP.V1V2.WriteCommunity,
			}
		}
		if dc.SNMP.V3 != nil {
			tcfg.V3 = &transport.V3Config{
				Username:      dc.SNMP.V3.Username,
				SecurityLevel: transport.SecurityLevel(dc.SNMP.V3.SecurityLevel),
				AuthProtocol:  dc.SNMP.V3.AuthProtocol,
				AuthKey:       dc.SNMP.V3.AuthKey,
				PrivProtocol:  dc.SNMP.V3.PrivProtocol,
				PrivKey:       dc.SNMP.V3.PrivKey,
			}
		}

		tr, err := transport.NewSNMPTransport(tcfg)
		if err != nil {
			return nil, fmt.Errorf("config: device %q: %w", name, err)
		}

		outlets := make([]string, 0, len(dc.Outlets))
		for outlet := range dc.Outlets {
			outlets = append(outlets, outlet)
		}
		sort.Strings(outlets)

		devices[name] = &device.Device{
			Name:        name,
			Outlets:     outlets,
			PowerStates: dc.PowerStates,
			Transport:   tr,
		}
	}

	return devices, nil
}
