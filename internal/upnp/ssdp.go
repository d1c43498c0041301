package upnp

import (
	"fmt"
	"net"

	"github.com/koron/go-ssdp"
)

// Advertiser announces one SSDP notification target.
type Advertiser interface {
	Alive() error
	Bye() error
	Close() error
}

// AdvertiseFunc creates an Advertiser for the search target st.
type AdvertiseFunc func(st, usn, location, server string, maxAge int) (Advertiser, error)

// SSDPAdvertise is the default AdvertiseFunc, backed by go-ssdp.
func SSDPAdvertise(st, usn, location, server string, maxAge int) (Advertiser, error) {
	adv, err := ssdp.Advertise(st, usn, location, server, maxAge)
	if err != nil {
		return nil, fmt.Errorf("advertising %s: %w", st, err)
	}
	return adv, nil
}

// advertisementTargets lists the (ST, USN) pairs a root device announces.
func advertisementTargets(desc *Description) [][2]string {
	udn := desc.Device.UDN
	targets := [][2]string{
		{"upnp:rootdevice", udn + "::upnp:rootdevice"},
		{udn, udn},
		{desc.Device.DeviceType, udn + "::" + desc.Device.DeviceType},
	}
	seen := make(map[string]bool)
	for _, svc := range desc.Device.Services {
		if seen[svc.ServiceType] {
			continue
		}
		seen[svc.ServiceType] = true
		targets = append(targets, [2]string{svc.ServiceType, udn + "::" + svc.ServiceType})
	}
	return targets
}

// resolveInterface returns the IPv4 address to bind. An empty name selects
// the first interface that is up, not loopback and has an IPv4 address.
func resolveInterface(name string) (net.Interface, net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, nil, fmt.Errorf("listing interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if name != "" && iface.Name != name {
			continue
		}
		if name == "" && (iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0) {
			continue
		}
		if ip := ipv4Of(iface); ip != nil {
			return iface, ip, nil
		}
		if name != "" {
			break
		}
	}
	if name == "" {
		return net.Interface{}, nil, ErrInterfaceNotFound
	}
	return net.Interface{}, nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}

func ipv4Of(iface net.Interface) net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}

// interfaceForIP returns the interface that owns ip together with the
// parsed address, which is kept as configured.
func interfaceForIP(ip string) (net.Interface, net.IP, error) {
	want := net.ParseIP(ip)
	if want == nil {
		return net.Interface{}, nil, fmt.Errorf("%w: invalid address %q", ErrInterfaceNotFound, ip)
	}
	if v4 := want.To4(); v4 != nil {
		want = v4
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, nil, fmt.Errorf("listing interfaces: %w", err)
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.Equal(want) {
				return iface, want, nil
			}
		}
	}
	return net.Interface{}, nil, fmt.Errorf("%w: no interface has address %s", ErrInterfaceNotFound, ip)
}
