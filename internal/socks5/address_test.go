package socks5

import (
	"bytes"
	"errors"
	"net/netip"
	"strconv"
	"strings"
	"testing"
)

func TestEncodeHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		host    string
		atyp    byte
		addr    []byte
		wantErr error
	}{
		{
			name: "ipv4",
			host: "192.168.1.20",
			atyp: 0x01,
			addr: []byte{192, 168, 1, 20},
		},
		{
			name: "ipv6 full",
			host: "2001:0db8:0000:0000:0000:ff00:0042:8329",
			atyp: 0x04,
			addr: []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0xff, 0x00, 0x00, 0x42, 0x83, 0x29},
		},
		{
			name: "ipv6 compressed",
			host: "2001:db8::ff00:42:8329",
			atyp: 0x04,
			addr: []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0xff, 0x00, 0x00, 0x42, 0x83, 0x29},
		},
		{
			name: "ipv6 loopback",
			host: "::1",
			atyp: 0x04,
			addr: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		},
		{
			name: "ipv6 unspecified",
			host: "::",
			atyp: 0x04,
			addr: make([]byte, 16),
		},
		{
			name: "ipv4-mapped ipv6",
			host: "::ffff:10.0.0.1",
			atyp: 0x04,
			addr: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 10, 0, 0, 1},
		},
		{
			name: "ipv6 zone dropped",
			host: "fe80::1%eth0",
			atyp: 0x04,
			addr: []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		},
		{
			name: "domain",
			host: "example.com",
			atyp: 0x03,
			addr: []byte("example.com"),
		},
		{
			name: "tailnet name",
			host: "db.tail1234.ts.net",
			atyp: 0x03,
			addr: []byte("db.tail1234.ts.net"),
		},
		{
			name: "out of range octet is a name",
			host: "256.1.1.1",
			atyp: 0x03,
			addr: []byte("256.1.1.1"),
		},
		{
			name: "utf-8 domain",
			host: "bücher.example",
			atyp: 0x03,
			addr: []byte("bücher.example"),
		},
		{
			name: "domain of 255 bytes",
			host: strings.Repeat("a", 255),
			atyp: 0x03,
			addr: []byte(strings.Repeat("a", 255)),
		},
		{
			name:    "domain of 256 bytes",
			host:    strings.Repeat("a", 256),
			wantErr: ErrHostTooLong,
		},
		{
			name:    "utf-8 domain over 255 bytes",
			host:    strings.Repeat("ü", 128),
			wantErr: ErrHostTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atyp, addr, err := encodeHost(tt.host)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if atyp != tt.atyp {
				t.Fatalf("atyp=0x%02x want 0x%02x", atyp, tt.atyp)
			}
			if !bytes.Equal(addr, tt.addr) {
				t.Fatalf("addr=%x want %x", addr, tt.addr)
			}
		})
	}
}

func TestEncodeHostIPv6Expansion(t *testing.T) {
	t.Parallel()

	literals := []string{
		"::",
		"::1",
		"1::",
		"fe80::",
		"2001:db8::1",
		"2001:db8:0:1::",
		"2001:db8:85a3::8a2e:370:7334",
		"1:2:3:4:5:6:7:8",
		"1:0:0:2::3",
		"::ffff:192.0.2.128",
	}

	for _, lit := range literals {
		t.Run(lit, func(t *testing.T) {
			_, addr, err := encodeHost(lit)
			if err != nil {
				t.Fatal(err)
			}

			want := expandGroups(t, lit)
			if !bytes.Equal(addr, want) {
				t.Fatalf("addr=%x want %x", addr, want)
			}

			// Decoding then re-encoding yields the same 16 bytes.
			decoded := netip.AddrFrom16([16]byte(addr)).String()
			_, again, err := encodeHost(decoded)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(again, addr) {
				t.Fatalf("re-encoded %q as %x, want %x", decoded, again, addr)
			}
		})
	}
}

// expandGroups writes out lit as eight 16-bit groups in order.
func expandGroups(t *testing.T, lit string) []byte {
	t.Helper()

	groups := strings.Split(netip.MustParseAddr(lit).StringExpanded(), ":")
	if len(groups) != 8 {
		t.Fatalf("expanded %q into %d groups", lit, len(groups))
	}
	out := make([]byte, 0, 16)
	for _, g := range groups {
		v, err := strconv.ParseUint(g, 16, 16)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, byte(v>>8), byte(v))
	}
	return out
}

func TestConnectRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target Endpoint
		want   []byte
	}{
		{
			name:   "ipv4",
			target: Endpoint{Host: "10.0.0.1", Port: 443},
			want:   []byte{0x05, 0x01, 0x00, 0x01, 10, 0, 0, 1, 0x01, 0xbb},
		},
		{
			name:   "ipv6",
			target: Endpoint{Host: "::1", Port: 8080},
			want: []byte{
				0x05, 0x01, 0x00, 0x04,
				0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
				0x1f, 0x90,
			},
		},
		{
			name:   "domain",
			target: Endpoint{Host: "example.com", Port: 80},
			want:   append(append([]byte{0x05, 0x01, 0x00, 0x03, 11}, "example.com"...), 0x00, 0x50),
		},
		{
			name:   "utf-8 length byte counts bytes",
			target: Endpoint{Host: "bücher.example", Port: 65535},
			want:   append(append([]byte{0x05, 0x01, 0x00, 0x03, 15}, "bücher.example"...), 0xff, 0xff),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := connectRequest(tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("got %x want %x", got, tt.want)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		want    Endpoint
		wantErr bool
	}{
		{address: "127.0.0.1:1055", want: Endpoint{Host: "127.0.0.1", Port: 1055}},
		{address: "[::1]:80", want: Endpoint{Host: "::1", Port: 80}},
		{address: "example.com:65535", want: Endpoint{Host: "example.com", Port: 65535}},
		{address: "example.com:65536", wantErr: true},
		{address: "example.com:http", wantErr: true},
		{address: "example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := ParseEndpoint(tt.address)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
			if got.String() != tt.address {
				t.Fatalf("String()=%q want %q", got.String(), tt.address)
			}
		})
	}
}

func TestEndpointValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint Endpoint
		wantErr  bool
	}{
		{name: "ok", endpoint: NewEndpoint("example.com", 22)},
		{name: "bracketed ipv6", endpoint: NewEndpoint("[2001:db8::1]", 22)},
		{name: "empty host", endpoint: NewEndpoint("", 22), wantErr: true},
		{name: "zero port", endpoint: NewEndpoint("example.com", 0), wantErr: true},
		{name: "host too long", endpoint: NewEndpoint(strings.Repeat("x", 300), 22), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.endpoint.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
