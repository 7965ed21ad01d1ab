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

// Package ndef encodes the record kinds tomotap writes (URI, Text, WiFi and
// vCard) into NDEF messages wrapped in a Type 2 tag TLV container, and decodes
// raw tag memory back into those records.
//
// Record header framing is delegated to go-ndef; the payload formats (URI
// abbreviation, Wi-Fi Simple Configuration attributes, vCard text) and the
// TLV container are handled here.
package ndef

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	gondef "github.com/hsanjuan/go-ndef"
)

// MIME types used for media records.
const (
	MIMEWiFi        = "application/vnd.wfa.wsc"
	MIMEVCard       = "text/x-vcard"
	MIMEVCardLegacy = "text/vcard"
)

// Well-known record types.
const (
	wktURI  = "U"
	wktText = "T"
)

// Decode errors.
var (
	ErrDecode            = errors.New("ndef: decode failed")
	ErrUnsupportedRecord = fmt.Errorf("%w: unsupported record", ErrDecode)
	ErrEmptyMessage      = errors.New("ndef: no records to encode")
)

// Kind identifies a supported record variant.
type Kind string

const (
	KindURI   Kind = "uri"
	KindText  Kind = "text"
	KindWiFi  Kind = "wifi"
	KindVCard Kind = "vcard"
	KindEmpty Kind = "empty"
)

// Record is one of URI, Text, WiFi, VCard or Empty.
type Record interface {
	Kind() Kind
	toNDEF() (*gondef.Record, error)
}

// URI is a well-known "U" record. The scheme is abbreviated on the wire.
type URI struct {
	URI string
}

func (URI) Kind() Kind { return KindURI }

func (u URI) toNDEF() (*gondef.Record, error) {
	if u.URI == "" {
		return nil, errors.New("ndef: empty URI")
	}
	return gondef.NewURIRecord(u.URI), nil
}

// Text is a well-known "T" record with UTF-8 text.
type Text struct {
	Text string
	// Lang is the IANA language code, "en" when empty.
	Lang string
}

func (Text) Kind() Kind { return KindText }

func (t Text) toNDEF() (*gondef.Record, error) {
	return gondef.NewTextRecord(t.Text, t.lang()), nil
}

func (t Text) lang() string {
	if t.Lang == "" {
		return "en"
	}
	return t.Lang
}

// VCard is a media record carrying vCard 3.0 text.
type VCard struct {
	Text string
}

func (VCard) Kind() Kind { return KindVCard }

func (v VCard) toNDEF() (*gondef.Record, error) {
	if v.Text == "" {
		return nil, errors.New("ndef: empty vCard")
	}
	return gondef.NewMediaRecord(MIMEVCard, []byte(v.Text)), nil
}

// Empty is the content of a formatted tag without records. It encodes to
// the empty NDEF TLV 03 00 FE.
type Empty struct{}

func (Empty) Kind() Kind { return KindEmpty }

func (Empty) toNDEF() (*gondef.Record, error) {
	return nil, errors.New("ndef: empty record has no NDEF form")
}

// Encode serializes a single record into a TLV container ready to be written
// from the first user page.
func Encode(r Record) ([]byte, error) {
	if _, ok := r.(Empty); ok {
		return EmptyTLV(), nil
	}
	return EncodeMessage(r)
}

// EncodeMessage serializes records into one NDEF message inside one TLV.
func EncodeMessage(records ...Record) ([]byte, error) {
	msg, err := Marshal(records...)
	if err != nil {
		return nil, err
	}
	return WrapTLV(msg)
}

// Marshal serializes records into a bare NDEF message without TLV framing.
func Marshal(records ...Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrEmptyMessage
	}

	msg := &gondef.Message{
		Records: make([]*gondef.Record, 0, len(records)),
	}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("ndef: record %d is nil", i)
		}
		rec, err := r.toNDEF()
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.Kind(), err)
		}
		// flags are set below for the whole message
		rec.SetMB(false)
		rec.SetME(false)
		msg.Records = append(msg.Records, rec)
	}
	msg.Records[0].SetMB(true)
	msg.Records[len(msg.Records)-1].SetME(true)

	data, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	return data, nil
}

// Decode parses tag bytes starting at the first user page and returns the
// first record. A blank or formatted-but-empty tag yields Empty.
func Decode(data []byte) (Record, error) {
	records, err := DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// DecodeMessage parses tag bytes and returns every record of the NDEF
// message. A blank tag yields a single Empty record.
func DecodeMessage(data []byte) ([]Record, error) {
	d := NewDecoder()
	if err := d.Feed(data); err != nil {
		return nil, err
	}
	return d.Records()
}

// Unmarshal parses a bare NDEF message (no TLV framing).
func Unmarshal(message []byte) ([]Record, error) {
	if len(message) == 0 {
		return []Record{Empty{}}, nil
	}

	msg := &gondef.Message{}
	if _, err := msg.Unmarshal(message); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(msg.Records) == 0 {
		return []Record{Empty{}}, nil
	}

	records := make([]Record, 0, len(msg.Records))
	for i, rec := range msg.Records {
		r, err := fromNDEF(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func fromNDEF(rec *gondef.Record) (Record, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get record payload: %w", ErrDecode, err)
	}
	raw := payload.Marshal()

	switch rec.TNF() {
	case gondef.NFCForumWellKnownType:
		switch rec.Type() {
		case wktURI:
			return decodeURIPayload(raw)
		case wktText:
			return decodeTextPayload(raw)
		}
	case gondef.MediaType:
		switch strings.ToLower(rec.Type()) {
		case MIMEWiFi:
			return decodeWiFiPayload(raw)
		case MIMEVCard, MIMEVCardLegacy:
			return VCard{Text: string(raw)}, nil
		}
	}
	return nil, fmt.Errorf("%w: tnf=%d type=%q", ErrUnsupportedRecord, rec.TNF(), rec.Type())
}

// Equal reports whether two records serialize to the same bytes.
func Equal(a, b Record) bool {
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// Summary returns a one-line human readable description of a record.
func Summary(r Record) string {
	switch v := r.(type) {
	case URI:
		return v.URI
	case Text:
		return v.Text
	case VCard:
		c := ParseContact(v)
		if c.Name != "" {
			return "vCard: " + c.Name
		}
		return "vCard"
	case WiFi:
		return fmt.Sprintf("WiFi: %s (%s)", v.SSID, v.Auth)
	case Empty:
		return "(empty)"
	default:
		return fmt.Sprintf("%v", r)
	}
}
