package socks5

// Package socks5 implements the client half of a SOCKS5 CONNECT handshake
// (RFC 1928) with "no authentication" as the only offered method.
//
// Frames are built with the primitives in github.com/txthinking/socks5. Replies
// are decoded here so that each failure maps onto one of the package's error
// values, and so that bytes the proxy sends right after its reply are kept for
// whoever reads the connection next.
