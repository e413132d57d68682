package harness

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// MDNSService is the service type harnesses advertise.
const MDNSService = "_affairs._tcp"

// Advertise publishes a harness endpoint over mDNS. The returned server must
// be shut down by the caller.
func Advertise(name string, port int, url string) (*mdns.Server, error) {
	if port <= 0 {
		return nil, fmt.Errorf("invalid port for mDNS advertisement: %d", port)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "affairs"
	}
	txt := []string{
		"name=" + name,
		"url=" + url,
	}
	service, err := mdns.NewMDNSService(name, MDNSService, "local", "", port, nil, txt)
	if err != nil {
		return nil, err
	}
	return mdns.NewServer(&mdns.Config{Zone: service})
}

// Endpoint is one discovered harness.
type Endpoint struct {
	Name string
	URL  string
	Host string
	Port int
}

// Browse queries the local network for harnesses for up to timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Endpoint, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	params := mdns.DefaultParams(MDNSService)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errc := make(chan error, 1)
	go func() {
		errc <- mdns.Query(params)
		close(entries)
	}()

	var out []Endpoint
	seen := map[string]bool{}
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return out, <-errc
			}
			ep := endpointFromEntry(e)
			if seen[ep.URL] {
				continue
			}
			seen[ep.URL] = true
			out = append(out, ep)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

func endpointFromEntry(e *mdns.ServiceEntry) Endpoint {
	ep := Endpoint{
		Name: strings.TrimSuffix(e.Name, "."+MDNSService+".local."),
		Host: e.Host,
		Port: e.Port,
	}
	for _, field := range e.InfoFields {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "name":
			ep.Name = v
		case "url":
			ep.URL = v
		}
	}
	if ep.URL == "" {
		host := strings.TrimSuffix(e.Host, ".")
		if e.AddrV4 != nil {
			host = e.AddrV4.String()
		}
		ep.URL = "ws://" + net.JoinHostPort(host, strconv.Itoa(e.Port)) + "/"
	}
	return ep
}
