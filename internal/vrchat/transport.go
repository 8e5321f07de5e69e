package vrchat

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// newTransport returns the base round tripper shared by every session. With
// useUTLS the TLS handshake presents a Chrome ClientHello.
func newTransport(useUTLS bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
	}
	if !useUTLS {
		return t
	}

	t.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		rawConn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host := addr
		if strings.Contains(addr, ":") {
			host, _, _ = net.SplitHostPort(addr)
		}
		spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
		if err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		// http/1.1 only: net/http cannot speak h2 over a custom TLS conn
		for _, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
			}
		}
		uconn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloCustom)
		if err := uconn.ApplyPreset(&spec); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		if err := uconn.HandshakeContext(ctx); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		return uconn, nil
	}
	return t
}
