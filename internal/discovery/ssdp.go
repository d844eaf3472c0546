package discovery

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"
)

const (
	ssdpAddr = "239.255.255.250:1900"
	// HEOS devices announce the Denon ACT root device.
	ssdpTarget = "urn:schemas-denon-com:device:ACT-Denon:1"
)

// SearchResponse is one raw SSDP reply, deduplicated by USN.
type SearchResponse struct {
	Location string
	USN      string
	Headers  map[string]string
	FromIP   string
}

// Search performs a multi-pass SSDP M-SEARCH for HEOS devices. Repeated
// passes catch devices that miss a single multicast datagram; replies are
// collected until timeout expires.
func Search(ctx context.Context, passes int, passInterval, timeout time.Duration) ([]SearchResponse, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	dest, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}

	byUSN := make(map[string]SearchResponse)

	for pass := 0; pass < passes; pass++ {
		if _, err := conn.WriteTo(searchRequest(), dest); err != nil {
			return nil, err
		}
		if pass < passes-1 {
			select {
			case <-ctx.Done():
				return collectResponses(byUSN), ctx.Err()
			case <-time.After(passInterval):
			}
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return collectResponses(byUSN), err
		}

		resp := parseSearchResponse(string(buf[:n]))
		if resp.Location == "" || resp.USN == "" {
			continue
		}
		resp.FromIP = raddr.String()

		if _, exists := byUSN[resp.USN]; !exists {
			byUSN[resp.USN] = resp
		}
	}

	return collectResponses(byUSN), nil
}

func searchRequest() []byte {
	msg := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddr,
		"MAN: \"ssdp:discover\"",
		"MX: 2",
		"ST: " + ssdpTarget,
		"",
		"",
	}, "\r\n")
	return []byte(msg)
}

func parseSearchResponse(raw string) SearchResponse {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	// Skip the HTTP/1.1 200 OK status line.
	scanner.Scan()

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	return SearchResponse{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Headers:  headers,
	}
}

func collectResponses(byUSN map[string]SearchResponse) []SearchResponse {
	result := make([]SearchResponse, 0, len(byUSN))
	for _, resp := range byUSN {
		result = append(result, resp)
	}
	return result
}
