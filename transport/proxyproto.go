package transport

import (
	"net"

	"github.com/pires/go-proxyproto"
)

// WrapListener wraps l so that connections from a peer matching one of the
// trusted reverse-proxy CIDRs have their real client address lifted from a
// PROXY protocol header before any authentication logging occurs (spec
// §6, "Proxy-trust list"). Connections from untrusted peers are passed
// through unmodified -- proxyproto.Listener only parses the header for
// upstreams whose Policy callback opts in.
func WrapListener(l net.Listener, trustedCIDRs []*net.IPNet) net.Listener {
	if len(trustedCIDRs) == 0 {
		return l
	}
	return &proxyproto.Listener{
		Listener: l,
		Policy: func(upstream net.Addr) (proxyproto.Policy, error) {
			var host, ok = hostOf(upstream)
			if !ok {
				return proxyproto.SKIP, nil
			}
			for _, cidr := range trustedCIDRs {
				if cidr.Contains(host) {
					return proxyproto.USE, nil
				}
			}
			return proxyproto.SKIP, nil
		},
	}
}

func hostOf(addr net.Addr) (net.IP, bool) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, false
	}
	return tcpAddr.IP, true
}

// ParseTrustedCIDRs parses a list of CIDR strings (e.g. "10.0.0.0/8") into
// the *net.IPNet form WrapListener expects. Invalid entries are returned
// as an error rather than silently skipped -- a misconfigured trust list
// is a deployment bug, not a runtime condition to paper over.
func ParseTrustedCIDRs(cidrs []string) ([]*net.IPNet, error) {
	var out = make([]*net.IPNet, 0, len(cidrs))
	for _, s := range cidrs {
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ipnet)
	}
	return out, nil
}
