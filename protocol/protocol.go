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

// Package protocol defines the line vocabulary exchanged between a host and
// a tag bridge: commands flow host to bridge, responses bridge to host. Both
// link variants carry exactly this vocabulary.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomotap/tomotap/internal/frame"
)

// Parse errors.
var (
	ErrMalformedLine   = errors.New("protocol: malformed line")
	ErrUnknownCommand  = errors.New("protocol: unknown command")
	ErrUnknownResponse = errors.New("protocol: unknown response")
)

// CommandKind names a host to bridge command.
type CommandKind string

const (
	CmdPing             CommandKind = "PING"
	CmdWriteRaw         CommandKind = "WRITE_RAW"
	CmdErase            CommandKind = "ERASE"
	CmdRead             CommandKind = "READ"
	CmdLock             CommandKind = "LOCK"
	CmdInfo             CommandKind = "INFO"
	CmdConfirmOverwrite CommandKind = "CONFIRM_OVERWRITE"
	CmdCancel           CommandKind = "CANCEL"
)

var commandKinds = map[CommandKind]bool{
	CmdPing: true, CmdWriteRaw: true, CmdErase: true, CmdRead: true,
	CmdLock: true, CmdInfo: true, CmdConfirmOverwrite: true, CmdCancel: true,
}

// Command is one host to bridge line.
type Command struct {
	Kind CommandKind
	// Data is the TLV to write for WRITE_RAW.
	Data []byte
}

// Convenience constructors.
func Ping() Command               { return Command{Kind: CmdPing} }
func WriteRaw(tlv []byte) Command { return Command{Kind: CmdWriteRaw, Data: tlv} }
func Erase() Command              { return Command{Kind: CmdErase} }
func Read() Command               { return Command{Kind: CmdRead} }
func Lock() Command               { return Command{Kind: CmdLock} }
func Info() Command               { return Command{Kind: CmdInfo} }
func ConfirmOverwrite() Command   { return Command{Kind: CmdConfirmOverwrite} }
func Cancel() Command             { return Command{Kind: CmdCancel} }

// IsControl reports whether c answers a DUPLICATE prompt.
func (c Command) IsControl() bool {
	return c.Kind == CmdConfirmOverwrite || c.Kind == CmdCancel
}

// Line encodes c with its terminator.
func (c Command) Line() []byte {
	if c.Kind == CmdWriteRaw {
		return frame.Join(string(c.Kind), frame.EncodeHex(c.Data))
	}
	return frame.Join(string(c.Kind), "")
}

func (c Command) String() string {
	l := c.Line()
	return string(l[:len(l)-1])
}

// ParseCommand decodes a command line.
func ParseCommand(line string) (Command, error) {
	name, data, _ := frame.Split(line)
	if name == "" {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	kind := CommandKind(strings.ToUpper(name))
	if !commandKinds[kind] {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	cmd := Command{Kind: kind}
	if kind == CmdWriteRaw {
		if data == "" {
			return Command{}, fmt.Errorf("%w: WRITE_RAW without data", ErrMalformedLine)
		}
		b, err := frame.DecodeHex(data)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}
		cmd.Data = b
	}
	return cmd, nil
}

// ResponseKind names a bridge to host response.
type ResponseKind string

const (
	RespPong          ResponseKind = "PONG"
	RespTapCard       ResponseKind = "TAP_CARD"
	RespWriteFail     ResponseKind = "WRITE_FAIL"
	RespDuplicate     ResponseKind = "DUPLICATE"
	RespReadyToWrite  ResponseKind = "READY_TO_WRITE"
	RespWriteComplete ResponseKind = "WRITE_COMPLETE"
	RespVerifyOK      ResponseKind = "VERIFY_OK"
	RespWriteOK       ResponseKind = "WRITE_OK"
	RespEraseOK       ResponseKind = "ERASE_OK"
	RespData          ResponseKind = "DATA"
	RespLockOK        ResponseKind = "LOCK_OK"
	RespTagInfo       ResponseKind = "TAG_INFO"
	RespError         ResponseKind = "ERROR"
)

// DataEmpty is the DATA field of a tag without an NDEF message.
const DataEmpty = "EMPTY"

// dataUIDSep separates the optional tag UID from the DATA payload, as in
// DATA|04A1B2C3D4E5F6:0300FE.
const dataUIDSep = ":"

// Response is one bridge to host line.
type Response struct {
	Kind ResponseKind
	// UID is set for DUPLICATE, VERIFY_OK, WRITE_OK, ERASE_OK, LOCK_OK and
	// DATA.
	UID string
	// Reason is set for WRITE_FAIL and ERROR.
	Reason string
	// Payload is the DATA bytes; nil with Empty set for EMPTY.
	Payload []byte
	Empty   bool
	Info    TagInfo
}

// Terminal reports whether r ends a logical command.
func (r Response) Terminal() bool {
	switch r.Kind {
	case RespTapCard, RespDuplicate, RespReadyToWrite, RespWriteComplete:
		return false
	default:
		return true
	}
}

// Failed reports whether r is WRITE_FAIL or ERROR.
func (r Response) Failed() bool {
	return r.Kind == RespWriteFail || r.Kind == RespError
}

func (r Response) data() string {
	switch r.Kind {
	case RespDuplicate, RespVerifyOK, RespWriteOK, RespEraseOK, RespLockOK:
		return r.UID
	case RespWriteFail, RespError:
		return r.Reason
	case RespData:
		body := DataEmpty
		if !r.Empty && len(r.Payload) > 0 {
			body = frame.EncodeHex(r.Payload)
		}
		if r.UID != "" {
			return r.UID + dataUIDSep + body
		}
		return body
	case RespTagInfo:
		return r.Info.String()
	default:
		return ""
	}
}

// Line encodes r with its terminator.
func (r Response) Line() []byte {
	return frame.Join(string(r.Kind), r.data())
}

func (r Response) String() string {
	l := r.Line()
	return string(l[:len(l)-1])
}

// ParseResponse decodes a response line.
func ParseResponse(line string) (Response, error) {
	name, data, _ := frame.Split(line)
	if name == "" {
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	r := Response{Kind: ResponseKind(strings.ToUpper(name))}

	switch r.Kind {
	case RespPong, RespTapCard, RespReadyToWrite, RespWriteComplete:
	case RespDuplicate, RespVerifyOK, RespWriteOK, RespEraseOK, RespLockOK:
		r.UID = strings.ToUpper(data)
	case RespWriteFail, RespError:
		r.Reason = data
	case RespData:
		if uid, body, ok := strings.Cut(data, dataUIDSep); ok {
			r.UID = strings.ToUpper(uid)
			data = body
		}
		if data == "" || strings.EqualFold(data, DataEmpty) {
			r.Empty = true
			break
		}
		b, err := frame.DecodeHex(data)
		if err != nil {
			return Response{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}
		r.Payload = b
	case RespTagInfo:
		info, err := ParseTagInfo(data)
		if err != nil {
			return Response{}, err
		}
		r.Info = info
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownResponse, name)
	}
	return r, nil
}

// TagInfo is the TAG_INFO payload.
type TagInfo struct {
	UID    string
	Type   string
	Size   int
	Locked bool
}

func (i TagInfo) String() string {
	locked := "0"
	if i.Locked {
		locked = "1"
	}
	return fmt.Sprintf("uid:%s,type:%s,size:%d,locked:%s", i.UID, i.Type, i.Size, locked)
}

// ParseTagInfo parses comma separated key:value pairs. Unknown keys are
// ignored.
func ParseTagInfo(s string) (TagInfo, error) {
	var info TagInfo
	for _, field := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "uid":
			info.UID = strings.ToUpper(strings.TrimSpace(val))
		case "type":
			info.Type = strings.TrimSpace(val)
		case "size":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return TagInfo{}, fmt.Errorf("%w: tag info size %q", ErrMalformedLine, val)
			}
			info.Size = n
		case "locked":
			v := strings.TrimSpace(val)
			info.Locked = v == "1" || strings.EqualFold(v, "true")
		}
	}
	return info, nil
}
