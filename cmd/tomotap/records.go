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

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tag"
)

var errUsage = errors.New("usage")

// recordSpec is a record parsed from the command line and the tag family
// it targets.
type recordSpec struct {
	record ndef.Record
	family tag.Family
}

// parseRecord builds a record from `<kind> [flags] [args]`.
func parseRecord(args []string) (recordSpec, error) {
	if len(args) == 0 {
		return recordSpec{}, fmt.Errorf("%w: missing record kind", errUsage)
	}
	kind, args := strings.ToLower(args[0]), args[1:]

	fs := flag.NewFlagSet(kind, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	family := fs.String("tag", "ntag213", "Target tag type: ntag213, ntag215 or ntag216")
	lang := fs.String("lang", "en", "Text language code")
	subject := fs.String("subject", "", "Email subject")
	body := fs.String("body", "", "Email or SMS body")
	password := fs.String("password", "", "WiFi password")
	auth := fs.String("auth", "", "WiFi auth: open, wpa, wpa2, wpa2-eap (default wpa2, or open without password)")
	fs.Bool("hidden", false, "WiFi network is hidden (not encoded)")
	var c ndef.Contact
	fs.StringVar(&c.Name, "name", "", "Contact name")
	fs.StringVar(&c.Phone, "phone", "", "Contact phone")
	fs.StringVar(&c.Email, "email", "", "Contact email")
	fs.StringVar(&c.Org, "org", "", "Contact organization")
	fs.StringVar(&c.Title, "title", "", "Contact title")
	fs.StringVar(&c.URL, "url", "", "Contact URL")
	fs.StringVar(&c.Address, "address", "", "Contact address")
	fs.StringVar(&c.Note, "note", "", "Contact note")
	if err := fs.Parse(args); err != nil {
		return recordSpec{}, fmt.Errorf("%w: %s: %w", errUsage, kind, err)
	}

	rs := recordSpec{family: tag.ParseFamily(*family)}
	if rs.family == tag.Unknown {
		return recordSpec{}, fmt.Errorf("%w: unknown tag type %q", errUsage, *family)
	}

	pos := fs.Args()
	arg := func(i int, name string) (string, error) {
		if i >= len(pos) || strings.TrimSpace(pos[i]) == "" {
			return "", fmt.Errorf("%w: %s needs %s", errUsage, kind, name)
		}
		return pos[i], nil
	}

	var err error
	switch kind {
	case "uri", "url":
		var u string
		if u, err = arg(0, "a URI"); err == nil {
			rs.record = ndef.URI{URI: u}
		}
	case "text":
		if _, err = arg(0, "text"); err == nil {
			rs.record = ndef.Text{Text: strings.Join(pos, " "), Lang: *lang}
		}
	case "phone", "tel":
		var n string
		if n, err = arg(0, "a phone number"); err == nil {
			rs.record, err = ndef.Phone(n)
		}
	case "email", "mailto":
		var addr string
		if addr, err = arg(0, "an address"); err == nil {
			rs.record, err = ndef.Email(addr, *subject, *body)
		}
	case "sms":
		var n string
		if n, err = arg(0, "a phone number"); err == nil {
			rs.record, err = ndef.SMS(n, *body)
		}
	case "social":
		var platform, user string
		if platform, err = arg(0, "a platform ("+strings.Join(ndef.SocialPlatforms(), ", ")+")"); err == nil {
			if user, err = arg(1, "a username"); err == nil {
				rs.record, err = ndef.Social(platform, user)
			}
		}
	case "wifi":
		var ssid string
		var a ndef.AuthType
		if ssid, err = arg(0, "an SSID"); err == nil && *auth != "" {
			a, err = ndef.ParseAuthType(*auth)
		}
		if err == nil {
			rs.record = ndef.NewWiFi(ssid, *password, a)
		}
	case "contact", "vcard":
		if c.Name == "" && len(pos) > 0 {
			c.Name = strings.Join(pos, " ")
		}
		rs.record, err = c.VCard()
	case "empty", "format":
		rs.record = ndef.Empty{}
	default:
		return recordSpec{}, fmt.Errorf("%w: unknown record kind %q", errUsage, kind)
	}
	if err != nil {
		return recordSpec{}, err
	}
	return rs, nil
}
