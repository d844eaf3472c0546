// Command heos-discover scans the local network for HEOS devices and prints
// the endpoints it finds.
//
// Usage:
//
//	go run ./cmd/heos-discover [-passes 3] [-timeout 5s] [-json]
//
// Each result is one device: CLI endpoint, plus name and model when the
// device description was fetchable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"time"

	"github.com/strefethen/heos-hub-go/internal/discovery"
)

const cliPort = "1255"

func main() {
	passes := flag.Int("passes", 3, "number of M-SEARCH passes")
	passInterval := flag.Duration("pass-interval", 2*time.Second, "delay between search passes")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to collect replies after the last pass")
	asJSON := flag.Bool("json", false, "print devices as JSON")
	flag.Parse()

	budget := *timeout + time.Duration(*passes)*(*passInterval)
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	log.Printf("Scanning for HEOS devices (%d passes, %s collect window)", *passes, *timeout)

	devices, err := discovery.DiscoverDevices(ctx, *passes, *passInterval, *timeout)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].IP < devices[j].IP })

	if *asJSON {
		printJSON(devices)
		return
	}

	if len(devices) == 0 {
		fmt.Println("No HEOS devices found")
		return
	}

	for _, device := range devices {
		endpoint := net.JoinHostPort(device.IP, cliPort)
		if device.Name == "" {
			fmt.Printf("%s\t(description unavailable, udn %s)\n", endpoint, device.UDN)
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", endpoint, device.Name, device.Model)
	}
	fmt.Printf("\n%d device(s) found\n", len(devices))
}

func printJSON(devices []discovery.Device) {
	type entry struct {
		Endpoint string `json:"endpoint"`
		Name     string `json:"name,omitempty"`
		Model    string `json:"model,omitempty"`
		Serial   string `json:"serial_number,omitempty"`
		UDN      string `json:"udn"`
		Location string `json:"location"`
	}

	entries := make([]entry, 0, len(devices))
	for _, device := range devices {
		entries = append(entries, entry{
			Endpoint: net.JoinHostPort(device.IP, cliPort),
			Name:     device.Name,
			Model:    device.Model,
			Serial:   device.SerialNumber,
			UDN:      device.UDN,
			Location: device.Location,
		})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
}
