package tcp

import "crypto/tls"

// NewClientTLSConfig returns a minimal client-side tls.Config for serverName,
// a convenience for the common case of passing WithTLSConfig a config that
// just needs a server name to verify against.
func NewClientTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
}

// NewServerTLSConfig returns a minimal server-side tls.Config presenting
// cert for every accepted connection.
func NewServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}
