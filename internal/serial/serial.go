// Package serial abstracts the LOR network's write-only serial transport:
// a real hardware port, a "null" device that silently discards, or a
// "stdout" device that hex-dumps bytes for local debugging.
package serial

import (
	"fmt"
	"io"
	"strings"

	goserial "go.bug.st/serial"

	"github.com/olivier-w/lorplayer/internal/errs"
)

// Sink is a non-blocking, drainable byte sink addressed by the player's
// encoder. It is foreground-owned for the lifetime of a playback job.
type Sink struct {
	kind kind
	port goserial.Port
	out  io.Writer
}

type kind int

const (
	kindNull kind = iota
	kindStdout
	kindPort
)

// Open opens deviceName at baudRate configured 8-N-1. The special names
// "null" (case-insensitive) and "stdout" select the discard and hex-dump
// sinks respectively; anything else is opened as a real serial device.
func Open(deviceName string, baudRate int, stdout io.Writer) (*Sink, error) {
	switch strings.ToLower(deviceName) {
	case "", "null":
		return &Sink{kind: kindNull}, nil
	case "stdout":
		return &Sink{kind: kindStdout, out: stdout}, nil
	}

	mode := &goserial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}

	port, err := goserial.Open(deviceName, mode)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no such file") {
			return nil, errs.Wrap(errs.NoSerialDevice, "serial.Open", err)
		}
		return nil, errs.Wrap(errs.SerialInit, "serial.Open", err)
	}

	return &Sink{kind: kindPort, port: port}, nil
}

// Write performs a non-blocking positioned write of b.
func (s *Sink) Write(b []byte) error {
	switch s.kind {
	case kindNull:
		return nil
	case kindPort:
		_, err := s.port.Write(b)
		if err != nil {
			return errs.Wrap(errs.Syscall, "serial.Write", err)
		}
		return nil
	case kindStdout:
		for _, c := range b {
			if c == 0x00 {
				fmt.Fprintln(s.out)
			} else {
				fmt.Fprintf(s.out, "0x%02X ", c)
			}
		}
		return nil
	default:
		return nil
	}
}

// Drain blocks until the hardware buffer (if any) has been flushed.
func (s *Sink) Drain() error {
	if s.kind != kindPort {
		return nil
	}
	if err := s.port.Drain(); err != nil {
		return errs.Wrap(errs.Syscall, "serial.Drain", err)
	}
	return nil
}

// Close releases the port, if any.
func (s *Sink) Close() error {
	if s.kind != kindPort {
		return nil
	}
	if err := s.port.Close(); err != nil {
		return errs.Wrap(errs.Syscall, "serial.Close", err)
	}
	return nil
}

// ListPorts enumerates available serial ports.
func ListPorts() ([]string, error) {
	ports, err := goserial.GetPortsList()
	if err != nil {
		return nil, errs.Wrap(errs.Syscall, "serial.ListPorts", err)
	}
	return ports, nil
}
