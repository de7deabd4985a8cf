package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

const (
	validUpstream = `(?P<Host>(?:\[[^\]]+\])|[^\s/:]+):?(?P<Port>[^\s/:]*)?`

	NetTCPUDP = "tcp+udp"
	NetTCPTLS = "tcp-tls"
)

// nolint:gochecknoglobals
var netDefaultPort = map[string]uint16{
	NetTCPUDP: 53,
	NetTCPTLS: 853,
}

// Upstream is the definition of an external DNS server
type Upstream struct {
	Net  string
	Host string
	Port uint16
}

// Address returns the upstream in host:port form, suitable for dns.Client
func (u Upstream) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(int(u.Port)))
}

func (u Upstream) String() string {
	return fmt.Sprintf("%s:%s", u.Net, u.Address())
}

// UnmarshalText implements `encoding.TextUnmarshaler`.
func (u *Upstream) UnmarshalText(data []byte) error {
	upstream, err := ParseUpstream(string(data))
	if err != nil {
		return err
	}

	*u = upstream

	return nil
}

// UnmarshalYAML implements yaml unmarshalling from a plain string
func (u *Upstream) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	return u.UnmarshalText([]byte(s))
}

// ParseUpstream creates a new Upstream from a string in format [net:]host[:port]
func ParseUpstream(upstream string) (result Upstream, err error) {
	if strings.TrimSpace(upstream) == "" {
		return Upstream{}, errors.New("upstream must not be empty")
	}

	n, upstream := extractNet(upstream)

	r := regexp.MustCompile(validUpstream)

	match := r.FindStringSubmatch(upstream)
	if len(match) == 0 {
		return result, fmt.Errorf("wrong configuration, couldn't parse input '%s', please enter [net:]host[:port]", upstream)
	}

	if _, ok := netDefaultPort[n]; !ok {
		return result, fmt.Errorf("wrong configuration, couldn't parse net '%s', please use one of %s",
			n, reflect.ValueOf(netDefaultPort).MapKeys())
	}

	host := match[1]
	if len(host) == 0 {
		return result, errors.New("wrong configuration, host wasn't specified")
	}

	// strip IPv6 brackets, JoinHostPort adds them back
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	port := netDefaultPort[n]

	if portPart := match[2]; len(portPart) > 0 {
		var p int

		p, err = strconv.Atoi(strings.TrimSpace(portPart))
		if err != nil {
			return result, fmt.Errorf("can't convert port to number %v", err)
		}

		if p < 1 || p > 65535 {
			return result, fmt.Errorf("invalid port %d", p)
		}

		port = uint16(p)
	}

	return Upstream{Net: n, Host: host, Port: port}, nil
}

func extractNet(upstream string) (string, string) {
	if strings.HasPrefix(upstream, NetTCPTLS+":") {
		return NetTCPTLS, strings.TrimPrefix(upstream, NetTCPTLS+":")
	}

	if strings.HasPrefix(upstream, NetTCPUDP+":") {
		return NetTCPUDP, strings.TrimPrefix(upstream, NetTCPUDP+":")
	}

	return NetTCPUDP, upstream
}
