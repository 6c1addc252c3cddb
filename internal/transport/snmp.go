package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// v3 USM construction — adapted from poller/session.go's
// mapAuthProto/mapPrivProto/snmpv3MsgFlags, driven by SecurityLevel masking
// instead of an implied-by-protocol-name flag set.
// ─────────────────────────────────────────────────────────────────────────────

func buildUSM(v3 *V3Config) (*gosnmp.UsmSecurityParameters, gosnmp.SnmpV3MsgFlags, error) {
	authProto := v3.AuthProtocol
	authKey := v3.AuthKey
	privProto := v3.PrivProtocol
	privKey := v3.PrivKey

	var msgFlags gosnmp.SnmpV3MsgFlags
	switch v3.SecurityLevel {
	case NoAuthNoPriv:
		authProto, authKey, privProto, privKey = "", "", "", ""
		msgFlags = gosnmp.NoAuthNoPriv
	case AuthNoPriv:
		privProto, privKey = "", ""
		msgFlags = gosnmp.AuthNoPriv
	case AuthPriv:
		msgFlags = gosnmp.AuthPriv
	default:
		return nil, 0, fmt.Errorf("transport: unknown security_level %q", v3.SecurityLevel)
	}

	return &gosnmp.UsmSecurityParameters{
		UserName:                 v3.Username,
		AuthenticationProtocol:   mapAuthProto(authProto),
		AuthenticationPassphrase: authKey,
		PrivacyProtocol:          mapPrivProto(privProto),
		PrivacyPassphrase:        privKey,
	}, msgFlags, nil
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(s) {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(s) {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GET / SET
// ─────────────────────────────────────────────────────────────────────────────

// OutletStateGet issues a single GET for outlet's configured OID. ctx is
// unused: gosnmp's client is not context-aware, and the per-attempt deadline
// is instead enforced by the Retrying Request's caller checking ctx after
// this call returns.
func (t *SNMPTransport) OutletStateGet(ctx context.Context, outlet string) (bool, Detail, error) {
	oid, ok := t.cfg.OutletOIDs[outlet]
	if !ok {
		return false, Detail{}, fmt.Errorf("transport: unknown outlet %q", outlet)
	}

	result, err := t.readCl.Get([]string{oid})
	return classify(result, err)
}

// OutletStateSet issues a single SET of value to outlet's configured OID.
// value is encoded as an SNMP Integer, matching the wire-value contract of
// power_states. ctx is unused for the same reason as OutletStateGet.
func (t *SNMPTransport) OutletStateSet(ctx context.Context, outlet string, value int) (bool, Detail, error) {
	oid, ok := t.cfg.OutletOIDs[outlet]
	if !ok {
		return false, Detail{}, fmt.Errorf("transport: unknown outlet %q", outlet)
	}

	pdu := gosnmp.SnmpPDU{
		Name:  oid,
		Type:  gosnmp.Integer,
		Value: value,
	}

	result, err := t.writeCl.Set([]gosnmp.SnmpPDU{pdu})
	return classify(result, err)
}

// Close releases both gosnmp UDP endpoints.
func (t *SNMPTransport) Close() error {
	var firstErr error
	if t.readCl != nil && t.readCl.Conn != nil {
		if err := t.readCl.Conn.Close(); err != nil {
			firstErr = err
		}
	}
	if t.writeCl != nil && t.writeCl.Conn != nil {
		if err := t.writeCl.Conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// classify builds the Detail tuple and the ok verdict from a gosnmp result.
//
// ok is EngineError == nil && PDUStatus == gosnmp.NoError. A non-nil PDU
// error status is never treated as success, even though engineErr is nil
// in that case.
func classify(result *gosnmp.SnmpPacket, engineErr error) (bool, Detail, error) {
	if engineErr != nil {
		return false, Detail{EngineError: engineErr}, nil
	}

	detail := Detail{
		PDUStatus:  result.Error,
		ErrorIndex: uint8(result.ErrorIndex),
		VarBinds:   result.Variables,
	}

	ok := detail.EngineError == nil && detail.PDUStatus == gosnmp.NoError
	return ok, detail, nil
}
