// Package transport implements the SNMP executor (C2): a single-shot GET and
// SET against one remote agent, with v1/v2c/v3 session construction adapted
// from poller/session.go, and PDU outcome classification adapted from
// snmp/decoder/varbind.go and types.go.
//
// An SNMPTransport holds two gosnmp handles for the life of the process, one
// carrying the read credential and one the write credential, each with its
// own UDP endpoint; it does not share a single handle or endpoint between
// reads and writes. It never retries internally — bounded retry is the
// Retrying Request's job (internal/retry).
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Detail is the opaque 4-tuple surfaced for logging: the SNMP engine-level
// error (transport/encoding failure), the PDU-level status, the PDU error
// index, and the raw varbinds returned. ok is defined strictly as
// EngineError == nil && PDUStatus == gosnmp.NoError — this repo does not
// reproduce the known bug of treating a non-nil PDU status as success.
type Detail struct {
	EngineError error
	PDUStatus   gosnmp.SNMPError
	ErrorIndex  uint8
	VarBinds    []gosnmp.SnmpPDU
}

// Transport is the contract shared by all SNMP variants.
type Transport interface {
	OutletStateGet(ctx context.Context, outlet string) (ok bool, detail Detail, err error)
	OutletStateSet(ctx context.Context, outlet string, value int) (ok bool, detail Detail, err error)
	Close() error
}

// SecurityLevel mirrors the v3 security_level gate.
type SecurityLevel string

const (
	NoAuthNoPriv SecurityLevel = "noAuthNoPriv"
	AuthNoPriv   SecurityLevel = "authNoPriv"
	AuthPriv     SecurityLevel = "authPriv"
)

// MessageModel discriminates v1 from v2c.
type MessageModel string

const (
	MessageModelV1  MessageModel = "v1"
	MessageModelV2c MessageModel = "v2c"
)

// V1V2Config is the v1/v2c variant of the Transport (SNMP) data model.
type V1V2Config struct {
	MessageModel    MessageModel
	ReadCommunity   string
	WriteCommunity  string
}

// V3Config is the v3 variant. Fields are nulled per SecurityLevel by
// NewSNMPTransport, mirroring the Python original's masking rules — not
// left to the caller to get right.
type V3Config struct {
	Username      string
	SecurityLevel SecurityLevel
	AuthProtocol  string
	AuthKey       string
	PrivProtocol  string
	PrivKey       string
}

// Config is the common Transport (SNMP) configuration record.
type Config struct {
	IPAddress         string
	UDPPort           uint16
	OutletOIDs        map[string]string
	PerAttemptTimeout int // seconds, applied per gosnmp call
	MaxAttempts       int // carried for reference; retry itself lives in internal/retry

	V1V2 *V1V2Config // exactly one of V1V2/V3 is non-nil, enforced by the factory
	V3   *V3Config
}

// SNMPTransport implements Transport via github.com/gosnmp/gosnmp, grounded
// on poller/session.go's NewSession construction.
type SNMPTransport struct {
	cfg     Config
	readCl  *gosnmp.GoSNMP // credential/version set for GET
	writeCl *gosnmp.GoSNMP // credential/version set for SET
}

// NewSNMPTransport builds the one-or-two gosnmp.GoSNMP handles for the life
// of the Transport and connects them. Read and write operations use
// distinct community strings (v1/v2c) but share the same v3 USM identity
// (only read vs write PDU type differs for v3), so two GoSNMP values are
// built and connected independently to keep the read/write community split
// uniform across variants.
func NewSNMPTransport(cfg Config) (*SNMPTransport, error) {
	if cfg.V1V2 == nil && cfg.V3 == nil {
		return nil, fmt.Errorf("transport: exactly one of v1v2/v3 must be set")
	}
	if cfg.V1V2 != nil && cfg.V3 != nil {
		return nil, fmt.Errorf("transport: exactly one of v1v2/v3 must be set")
	}

	readCl, err := buildSession(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("transport: build read session: %w", err)
	}
	writeCl, err := buildSession(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("transport: build write session: %w", err)
	}

	if err := readCl.Connect(); err != nil {
		return nil, fmt.Errorf("transport: connect read session: %w", err)
	}
	if err := writeCl.Connect(); err != nil {
		_ = readCl.Conn.Close()
		return nil, fmt.Errorf("transport: connect write session: %w", err)
	}

	return &SNMPTransport{cfg: cfg, readCl: readCl, writeCl: writeCl}, nil
}

func buildSession(cfg Config, write bool) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:  cfg.IPAddress,
		Port:    cfg.UDPPort,
		Timeout: time.Duration(cfg.PerAttemptTimeout) * time.Second,
		Retries: 0, // Transport never retries internally; bounded retry is internal/retry's job
		MaxOids: gosnmp.MaxOids,
	}

	switch {
	case cfg.V1V2 != nil:
		if cfg.V1V2.MessageModel == MessageModelV1 {
			g.Version = gosnmp.Version1
		} else {
			g.Version = gosnmp.Version2c
		}
		if write {
			g.Community = cfg.V1V2.WriteCommunity
		} else {
			g.Community = cfg.V1V2.ReadCommunity
		}

	case cfg.V3 != nil:
		g.Version = gosnmp.Version3
		usm, msgFlags, err := buildUSM(cfg.V3)
		if err != nil {
			return nil, err
		}
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = msgFlags
		g.SecurityParameters = usm
	}

	return g, nil
}
