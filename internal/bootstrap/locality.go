package bootstrap

import (
	"net"
	"os"
	"os/user"
	"strings"
)

// HostLocality implements plan.LocalityChecker against this machine's own
// network interfaces and OS user: "is this address one of mine".
type HostLocality struct {
	currentUser string
}

// NewHostLocality snapshots the current OS user once; os/user.Current can
// fail in minimal containers, in which case every username check fails
// closed (never local) rather than panicking.
func NewHostLocality() *HostLocality {
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return &HostLocality{currentUser: name}
}

// IsLocalAddress reports whether address names this host: "localhost",
// a loopback literal, or one of this host's interface addresses.
func (h *HostLocality) IsLocalAddress(address string) bool {
	if address == "" || address == "localhost" {
		return true
	}
	if ip := net.ParseIP(address); ip != nil && ip.IsLoopback() {
		return true
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.String() == address {
			return true
		}
	}
	return false
}

// IsCurrentUser reports whether username matches the OS user this process
// is running as.
func (h *HostLocality) IsCurrentUser(username string) bool {
	return username == h.currentUser
}

// DetermineHost mirrors ros/network.go's determineHost: ROS_HOSTNAME
// wins, then ROS_IP, then the OS hostname, then the first non-loopback
// interface address, falling back to the loopback address itself.
func DetermineHost() (host string, isLoopback bool) {
	if v, ok := os.LookupEnv("ROS_HOSTNAME"); ok {
		return v, v == "localhost"
	}
	if v, ok := os.LookupEnv("ROS_IP"); ok {
		return v, v == "::1" || strings.HasPrefix(v, "127.")
	}
	if osHostname, err := os.Hostname(); err == nil && osHostname != "localhost" {
		return osHostname, false
	}
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				return ipnet.IP.String(), false
			}
		}
	}
	return "127.0.0.1", true
}
