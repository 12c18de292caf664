package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

const unknownDevice = "RESTOPOS-UNKNOWN"

// DeviceID hashes the MAC address of the first active interface so LAN
// clients can tell two servers apart, e.g. "RESTOPOS-A1B2C3D4".
func DeviceID() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return unknownDevice
	}
	var mac string
	for _, i := range interfaces {
		if i.Flags&net.FlagUp != 0 && i.Flags&net.FlagLoopback == 0 && len(i.HardwareAddr) > 0 {
			mac = i.HardwareAddr.String()
			break
		}
	}
	return deviceIDFromMAC(mac)
}

func deviceIDFromMAC(mac string) string {
	if mac == "" {
		return unknownDevice
	}
	hash := sha256.Sum256([]byte(strings.ToLower(mac) + "restopos"))
	return "RESTOPOS-" + strings.ToUpper(hex.EncodeToString(hash[:])[:8])
}
