package dialer

// Package dialer provides the outbound dialers used by socksfwd.
//
// Dialers implement a small interface (DialContext). The relay uses a
// SOCKS5ProxyDialer to reach its target through a SOCKS5 proxy; the proxy
// connection itself is made by a direct dialer.
