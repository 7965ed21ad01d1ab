// tomotap
// Copyright (c) 2025 The tomotap Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of tomotap.
//
// tomotap is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// tomotap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with tomotap; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package ndef

import (
	"encoding/binary"
	"fmt"
	"strings"

	gondef "github.com/hsanjuan/go-ndef"
)

// Wi-Fi Simple Configuration attribute IDs.
const (
	wscCredential   uint16 = 0x100E
	wscNetworkIndex uint16 = 0x1026
	wscSSID         uint16 = 0x1045
	wscAuthType     uint16 = 0x1003
	wscEncryption   uint16 = 0x100F
	wscNetworkKey   uint16 = 0x1027
	wscMACAddress   uint16 = 0x1020
)

// AuthType is the WSC authentication type attribute value.
type AuthType uint16

const (
	AuthOpen    AuthType = 0x0001
	AuthWPA     AuthType = 0x0002
	AuthWPA2EAP AuthType = 0x0010
	AuthWPA2    AuthType = 0x0020
)

func (a AuthType) String() string {
	switch a {
	case AuthOpen:
		return "open"
	case AuthWPA:
		return "wpa"
	case AuthWPA2:
		return "wpa2"
	case AuthWPA2EAP:
		return "wpa2-eap"
	default:
		return fmt.Sprintf("auth(0x%04X)", uint16(a))
	}
}

// ParseAuthType accepts the names printed by AuthType.String.
func ParseAuthType(s string) (AuthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "none", "":
		return AuthOpen, nil
	case "wpa", "wpa-psk":
		return AuthWPA, nil
	case "wpa2", "wpa2-psk":
		return AuthWPA2, nil
	case "wpa2-eap", "wpa2-enterprise":
		return AuthWPA2EAP, nil
	default:
		return 0, fmt.Errorf("unknown wifi auth type %q", s)
	}
}

// EncryptionType is the WSC encryption type attribute value.
type EncryptionType uint16

const (
	EncryptionNone EncryptionType = 0x0001
	EncryptionAES  EncryptionType = 0x0008
)

// BroadcastMAC is written when no MAC address is given.
var BroadcastMAC = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// WiFi is a Wi-Fi Simple Configuration credential media record.
// Zero values for NetworkIndex, Encryption and MAC are filled with defaults
// when encoding.
type WiFi struct {
	SSID         string
	Key          string
	Auth         AuthType
	Encryption   EncryptionType
	NetworkIndex byte
	MAC          [6]byte
}

// NewWiFi returns a credential with defaults applied.
func NewWiFi(ssid, key string, auth AuthType) WiFi {
	return WiFi{SSID: ssid, Key: key, Auth: auth}.withDefaults()
}

func (WiFi) Kind() Kind { return KindWiFi }

func (w WiFi) withDefaults() WiFi {
	if w.Auth == 0 {
		if w.Key == "" {
			w.Auth = AuthOpen
		} else {
			w.Auth = AuthWPA2
		}
	}
	if w.Encryption == 0 {
		if w.Auth == AuthOpen {
			w.Encryption = EncryptionNone
		} else {
			w.Encryption = EncryptionAES
		}
	}
	if w.NetworkIndex == 0 {
		w.NetworkIndex = 1
	}
	if w.MAC == [6]byte{} {
		w.MAC = BroadcastMAC
	}
	return w
}

func (w WiFi) toNDEF() (*gondef.Record, error) {
	payload, err := w.payload()
	if err != nil {
		return nil, err
	}
	return gondef.NewMediaRecord(MIMEWiFi, payload), nil
}

func (w WiFi) payload() ([]byte, error) {
	if w.SSID == "" {
		return nil, fmt.Errorf("ndef: wifi SSID is required")
	}
	if len(w.SSID) > 32 {
		return nil, fmt.Errorf("ndef: wifi SSID longer than 32 bytes")
	}
	w = w.withDefaults()

	var cred []byte
	cred = appendAttr(cred, wscNetworkIndex, []byte{w.NetworkIndex})
	cred = appendAttr(cred, wscSSID, []byte(w.SSID))
	cred = appendAttr(cred, wscAuthType, u16(uint16(w.Auth)))
	cred = appendAttr(cred, wscEncryption, u16(uint16(w.Encryption)))
	if w.Key != "" {
		cred = appendAttr(cred, wscNetworkKey, []byte(w.Key))
	}
	cred = appendAttr(cred, wscMACAddress, w.MAC[:])

	return appendAttr(nil, wscCredential, cred), nil
}

func decodeWiFiPayload(p []byte) (Record, error) {
	cred, ok, err := findAttr(p, wscCredential)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: wifi payload has no credential", ErrDecode)
	}

	var w WiFi
	for off := 0; off < len(cred); {
		id, val, next, err := readAttr(cred, off)
		if err != nil {
			return nil, err
		}
		off = next
		switch id {
		case wscNetworkIndex:
			if len(val) > 0 {
				w.NetworkIndex = val[0]
			}
		case wscSSID:
			w.SSID = string(val)
		case wscAuthType:
			if len(val) == 2 {
				w.Auth = AuthType(binary.BigEndian.Uint16(val))
			}
		case wscEncryption:
			if len(val) == 2 {
				w.Encryption = EncryptionType(binary.BigEndian.Uint16(val))
			}
		case wscNetworkKey:
			w.Key = string(val)
		case wscMACAddress:
			copy(w.MAC[:], val)
		}
	}
	if w.SSID == "" {
		return nil, fmt.Errorf("%w: wifi credential has no SSID", ErrDecode)
	}
	return w, nil
}

func findAttr(p []byte, want uint16) ([]byte, bool, error) {
	for off := 0; off < len(p); {
		id, val, next, err := readAttr(p, off)
		if err != nil {
			return nil, false, err
		}
		if id == want {
			return val, true, nil
		}
		off = next
	}
	return nil, false, nil
}

func readAttr(p []byte, off int) (id uint16, val []byte, next int, err error) {
	if off+4 > len(p) {
		return 0, nil, 0, fmt.Errorf("%w: truncated wifi attribute header", ErrDecode)
	}
	id = binary.BigEndian.Uint16(p[off:])
	n := int(binary.BigEndian.Uint16(p[off+2:]))
	if off+4+n > len(p) {
		return 0, nil, 0, fmt.Errorf("%w: wifi attribute 0x%04X overruns payload", ErrDecode, id)
	}
	return id, p[off+4 : off+4+n], off + 4 + n, nil
}

func appendAttr(b []byte, id uint16, val []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, id)
	b = binary.BigEndian.AppendUint16(b, uint16(len(val)))
	return append(b, val...)
}

func u16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}
