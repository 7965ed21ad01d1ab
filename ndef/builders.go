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
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var errEmptyField = errors.New("ndef: required field is empty")

// Phone returns a tel: URI record. Whitespace in the number is removed.
func Phone(number string) (URI, error) {
	n := strings.Join(strings.Fields(number), "")
	if n == "" {
		return URI{}, fmt.Errorf("%w: phone number", errEmptyField)
	}
	return URI{URI: "tel:" + n}, nil
}

// Email returns a mailto: URI record with optional subject and body.
func Email(address, subject, body string) (URI, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return URI{}, fmt.Errorf("%w: email address", errEmptyField)
	}

	q := url.Values{}
	if subject != "" {
		q.Set("subject", subject)
	}
	if body != "" {
		q.Set("body", body)
	}
	uri := "mailto:" + address
	if len(q) > 0 {
		// mail clients expect %20 rather than +
		uri += "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
	}
	return URI{URI: uri}, nil
}

// SMS returns an sms: URI record.
func SMS(number, message string) (URI, error) {
	n := strings.Join(strings.Fields(number), "")
	if n == "" {
		return URI{}, fmt.Errorf("%w: sms number", errEmptyField)
	}
	uri := "sms:" + n
	if message != "" {
		uri += "?body=" + url.QueryEscape(message)
	}
	return URI{URI: uri}, nil
}

// socialProfiles maps a platform name to its profile URL template.
var socialProfiles = map[string]string{
	"discord":   "https://discord.com/users/%s",
	"facebook":  "https://www.facebook.com/%s",
	"github":    "https://github.com/%s",
	"instagram": "https://www.instagram.com/%s",
	"linkedin":  "https://www.linkedin.com/in/%s",
	"pinterest": "https://www.pinterest.com/%s",
	"reddit":    "https://www.reddit.com/user/%s",
	"snapchat":  "https://www.snapchat.com/add/%s",
	"spotify":   "https://open.spotify.com/user/%s",
	"telegram":  "https://t.me/%s",
	"threads":   "https://www.threads.net/@%s",
	"tiktok":    "https://www.tiktok.com/@%s",
	"twitch":    "https://www.twitch.tv/%s",
	"twitter":   "https://twitter.com/%s",
	"whatsapp":  "https://wa.me/%s",
	"x":         "https://x.com/%s",
	"youtube":   "https://www.youtube.com/@%s",
}

// SocialPlatforms lists the platforms Social accepts, sorted.
func SocialPlatforms() []string {
	names := make([]string, 0, len(socialProfiles))
	for name := range socialProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Social returns a profile URI record for a username on a known platform.
// A leading @ on the username is dropped.
func Social(platform, username string) (URI, error) {
	tmpl, ok := socialProfiles[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return URI{}, fmt.Errorf("ndef: unknown social platform %q", platform)
	}
	user := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if user == "" {
		return URI{}, fmt.Errorf("%w: username", errEmptyField)
	}
	return URI{URI: fmt.Sprintf(tmpl, url.PathEscape(user))}, nil
}

// Contact is the subset of vCard fields tomotap writes.
type Contact struct {
	Name    string
	Phone   string
	Email   string
	Org     string
	Title   string
	URL     string
	Address string
	Note    string
}

// VCard renders c as a vCard 3.0 record.
func (c Contact) VCard() (VCard, error) {
	if strings.TrimSpace(c.Name) == "" {
		return VCard{}, fmt.Errorf("%w: contact name", errEmptyField)
	}

	var b strings.Builder
	line := func(key, val string) {
		if val == "" {
			return
		}
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(escapeVCard(val))
		b.WriteString("\r\n")
	}

	b.WriteString("BEGIN:VCARD\r\nVERSION:3.0\r\n")
	line("FN", c.Name)
	b.WriteString("N:" + structuredName(c.Name) + "\r\n")
	line("TEL;TYPE=CELL", c.Phone)
	line("EMAIL", c.Email)
	line("ORG", c.Org)
	line("TITLE", c.Title)
	line("URL", c.URL)
	if c.Address != "" {
		b.WriteString("ADR;TYPE=HOME:;;" + escapeVCard(c.Address) + ";;;;\r\n")
	}
	line("NOTE", c.Note)
	b.WriteString("END:VCARD\r\n")

	return VCard{Text: b.String()}, nil
}

// ParseContact extracts the fields written by Contact.VCard. Unknown
// properties and parameters are ignored.
func ParseContact(v VCard) Contact {
	var c Contact
	for _, raw := range strings.Split(strings.ReplaceAll(v.Text, "\r\n", "\n"), "\n") {
		key, val, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		// strip parameters such as TEL;TYPE=CELL
		key, _, _ = strings.Cut(strings.ToUpper(key), ";")
		val = unescapeVCard(val)
		switch key {
		case "FN":
			c.Name = val
		case "TEL":
			c.Phone = val
		case "EMAIL":
			c.Email = val
		case "ORG":
			c.Org = val
		case "TITLE":
			c.Title = val
		case "URL":
			c.URL = val
		case "ADR":
			c.Address = strings.Trim(val, ";")
		case "NOTE":
			c.Note = val
		}
	}
	return c
}

func structuredName(full string) string {
	parts := strings.Fields(full)
	if len(parts) < 2 {
		return escapeVCard(full) + ";;;;"
	}
	last := parts[len(parts)-1]
	first := strings.Join(parts[:len(parts)-1], " ")
	return escapeVCard(last) + ";" + escapeVCard(first) + ";;;"
}

var (
	vcardEscaper   = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\n", `\n`)
	vcardUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n")
)

func escapeVCard(s string) string   { return vcardEscaper.Replace(s) }
func unescapeVCard(s string) string { return vcardUnescaper.Replace(s) }
