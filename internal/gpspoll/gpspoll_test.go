// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpspoll

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"testing"
	"time"
)

const (
	reportVersion = `{"class":"VERSION","release":"3.25","proto_major":3,"proto_minor":15}`
	reportSky     = `{"class":"SKY","device":"/dev/ttyUSB0","hdop":0.9,"nSat":11,"uSat":8}`
	reportTPV     = `{"class":"TPV","device":"/dev/ttyUSB0","mode":3,"time":"2026-03-19T11:59:58.000Z","lat":52.516275,"lon":13.377704,"alt":34.2,"eph":6.4,"epx":4.1,"epy":5.3}`
)

func TestNewClient(t *testing.T) {
	client := New("gps.local", "2947")
	if client.Addr != "gps.local:2947" {
		t.Errorf("expected client address to be gps.local:2947, got %s", client.Addr)
	}
	if client.now == nil {
		t.Error("expected a receive clock to be set")
	}
}

func TestClient_Poll(t *testing.T) {
	t.Run("the first TPV report after other classes is returned", func(t *testing.T) {
		client := mockGPSDClient(t, reportVersion, reportSky, reportTPV)
		fix, err := client.Poll(t.Context())
		if err != nil {
			t.Fatalf("failed to poll gpsd: %s", err)
		}
		if fix.Lat != 52.516275 || fix.Lon != 13.377704 {
			t.Errorf("expected fix at 52.516275,13.377704, got %f,%f", fix.Lat, fix.Lon)
		}
		if fix.Alt != 34.2 {
			t.Errorf("expected altitude 34.2, got %f", fix.Alt)
		}
		if fix.Acc != 6.4 {
			t.Errorf("expected accuracy to be the eph of 6.4, got %f", fix.Acc)
		}
		if !fix.Has2DFix() {
			t.Error("expected a 2D fix")
		}
	})
	t.Run("undecodable lines are skipped", func(t *testing.T) {
		client := mockGPSDClient(t, reportVersion, "{garbage", reportTPV)
		if _, err := client.Poll(t.Context()); err != nil {
			t.Errorf("expected poll to skip the broken line, got %s", err)
		}
	})
	t.Run("a session without TPV report fails", func(t *testing.T) {
		client := mockGPSDClient(t, reportVersion, reportSky)
		_, err := client.Poll(t.Context())
		if err == nil || !strings.Contains(err.Error(), "no TPV response") {
			t.Errorf("expected missing TPV error, got %v", err)
		}
	})
	t.Run("a canceled context fails the poll", func(t *testing.T) {
		client := mockGPSDClient(t, reportVersion, reportTPV)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := client.Poll(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected error to be %s, got %v", context.Canceled, err)
		}
	})
	t.Run("an unreachable gpsd fails the poll", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to reserve a port: %s", err)
		}
		host, port, _ := net.SplitHostPort(ln.Addr().String())
		_ = ln.Close()
		if _, err = New(host, port).Poll(t.Context()); err == nil {
			t.Error("expected poll of a closed port to fail")
		}
	})
}

func TestClient_PollTime(t *testing.T) {
	t.Run("the GPS time of the report is used", func(t *testing.T) {
		client := mockGPSDClient(t, reportTPV)
		client.now = func() time.Time {
			t.Error("expected the receive clock not to be used")
			return time.Time{}
		}
		fix, err := client.Poll(t.Context())
		if err != nil {
			t.Fatalf("failed to poll gpsd: %s", err)
		}
		want := time.Date(2026, 3, 19, 11, 59, 58, 0, time.UTC)
		if !fix.Time.Equal(want) {
			t.Errorf("expected fix time %s, got %s", want, fix.Time)
		}
	})
	t.Run("reports without time use the receive time", func(t *testing.T) {
		received := time.Date(2026, 3, 19, 12, 0, 0, 0, time.UTC)
		client := mockGPSDClient(t, `{"class":"TPV","mode":2,"lat":52.5,"lon":13.4}`)
		client.now = func() time.Time { return received }
		fix, err := client.Poll(t.Context())
		if err != nil {
			t.Fatalf("failed to poll gpsd: %s", err)
		}
		if !fix.Time.Equal(received) {
			t.Errorf("expected fix time %s, got %s", received, fix.Time)
		}
	})
}

func TestHorizontalAccuracy(t *testing.T) {
	tests := []struct {
		name          string
		eph, epx, epy float64
		mode          int
		want          float64
	}{
		{"eph wins", 6.4, 4.1, 5.3, 3, 6.4},
		{"epx and epy are combined", 0, 3, 4, 3, 5},
		{"epx alone falls back to the mode", 0, 3, 0, 3, fallbackAccuracy3DFix},
		{"3d fix without estimates", 0, 0, 0, 3, fallbackAccuracy3DFix},
		{"2d fix without estimates", 0, 0, 0, 2, fallbackAccuracy2DFix},
		{"no fix", 0, 0, 0, 1, fallbackAccuracyNoFix},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := HorizontalAccuracy(tc.eph, tc.epx, tc.epy, tc.mode)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("expected accuracy %f, got %f", tc.want, got)
			}
		})
	}
}

func TestFix_Has2DFix(t *testing.T) {
	for mode, want := range map[int]bool{0: false, 1: false, 2: true, 3: true} {
		if got := (Fix{Mode: mode}).Has2DFix(); got != want {
			t.Errorf("expected Has2DFix() for mode %d to be %t", mode, want)
		}
	}
}

// mockGPSDClient returns a client for a single gpsd session that answers the WATCH request
// with the given report lines and then hangs up.
func mockGPSDClient(t *testing.T, reports ...string) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start mock gpsd: %s", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.SetDeadline(time.Now().Add(watchTimeout))
		if _, err = bufio.NewReader(conn).ReadString('\n'); err != nil {
			return
		}
		for _, report := range reports {
			if _, err = conn.Write([]byte(report + "\n")); err != nil {
				return
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("failed to split mock gpsd address: %s", err)
	}
	return New(host, port)
}
