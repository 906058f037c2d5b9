// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
)

// rmcVariationField is the index of the magnetic variation in RMC fields.
const rmcVariationField = 9

// PortOptions selects the GPS serial port.
type PortOptions struct {
	Name string // /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, ...
	Baud uint
}

// DeclinationReader keeps the latest valid RMC fix, fed either from NMEA
// lines or from fixes decoded elsewhere. It is safe for concurrent use.
type DeclinationReader struct {
	mu  sync.RWMutex
	fix Fix
	ok  bool
}

// NewDeclinationReader returns a reader with no fix yet.
func NewDeclinationReader() *DeclinationReader {
	return &DeclinationReader{}
}

// OpenPort opens the serial port 8N1 at opts.Baud (9600 when zero).
func OpenPort(opts PortOptions) (io.ReadWriteCloser, error) {
	if opts.Baud == 0 {
		opts.Baud = 9600
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:              opts.Name,
		BaudRate:              opts.Baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", opts.Name, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", opts.Name, opts.Baud)
	return port, nil
}

// Declination returns the latest magnetic variation in radians, east
// positive. ok is false until a valid RMC with a variation has been seen.
func (r *DeclinationReader) Declination() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ok || !r.fix.HasDeclination {
		return 0, false
	}
	return geom.Rad(r.fix.Declination), true
}

// Fix returns the latest valid fix.
func (r *DeclinationReader) Fix() (Fix, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fix, r.ok
}

// Run reads NMEA lines until src is exhausted or ctx is done, calling onFix
// (if non-nil) for every valid RMC. Unparseable lines are skipped.
func (r *DeclinationReader) Run(ctx context.Context, src io.Reader, onFix func(Fix)) error {
	reader := bufio.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if line != "" && r.HandleLine(line) && onFix != nil {
			fix, _ := r.Fix()
			onFix(fix)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("gps: read: %w", err)
		}
	}
}

// HandleLine feeds one NMEA sentence. It reports whether the line updated
// the fix.
func (r *DeclinationReader) HandleLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy GPS or partial sentences
		return false
	}
	m, ok := sentence.(nmea.RMC)
	if !ok || m.Validity != nmea.ValidRMC {
		return false
	}

	fix := Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   m.Validity,
	}
	if len(m.Fields) > rmcVariationField && m.Fields[rmcVariationField] != "" {
		// go-nmea already negates westerly variation.
		fix.Declination = m.Variation
		fix.HasDeclination = true
	}

	r.Update(fix)
	return true
}

// Update stores a fix received from elsewhere, e.g. the GPS topic. Fixes
// that are not valid are ignored.
func (r *DeclinationReader) Update(fix Fix) {
	if fix.Validity != nmea.ValidRMC {
		return
	}
	r.mu.Lock()
	changed := !r.ok || r.fix.Declination != fix.Declination || r.fix.HasDeclination != fix.HasDeclination
	r.fix = fix
	r.ok = true
	r.mu.Unlock()

	if changed && fix.HasDeclination {
		log.Printf("gps: magnetic declination %.2f°", fix.Declination)
	}
}
