package discovery

import (
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// HEOS devices serve their UPnP root description on this port.
const descriptionPort = "60006"

// httpClient bounds description fetches so unreachable devices cannot hang
// a scan.
var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
		TLSHandshakeTimeout: 3 * time.Second,
		IdleConnTimeout:     30 * time.Second,
	},
}

// Device is one discovered HEOS endpoint candidate.
type Device struct {
	IP           string
	Name         string
	Model        string
	ModelNumber  string
	SerialNumber string
	UDN          string
	Location     string
	LastSeenAt   time.Time
}

// ProbeDevice fetches the device description for a bare IP. Used for
// statically configured addresses that did not answer the multicast search.
func ProbeDevice(ctx context.Context, ip string) (*Device, error) {
	location := "http://" + net.JoinHostPort(ip, descriptionPort) + "/upnp/desc/aios_device/aios_device.xml"
	return FetchDevice(ctx, ip, location)
}

// FetchDevice retrieves the UPnP description at location and builds a
// Device. A reachable address with an unusable description yields (nil, nil).
func FetchDevice(ctx context.Context, ip, location string) (*Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	desc := parseDeviceDescription(body)
	if desc.FriendlyName == "" && desc.UDN == "" {
		return nil, nil
	}

	udn := desc.UDN
	if udn == "" {
		udn = "probe_" + ip
	}

	return &Device{
		IP:           ip,
		Name:         desc.FriendlyName,
		Model:        desc.ModelName,
		ModelNumber:  desc.ModelNumber,
		SerialNumber: desc.SerialNumber,
		UDN:          udn,
		Location:     location,
		LastSeenAt:   time.Now(),
	}, nil
}

type deviceDescription struct {
	FriendlyName string
	ModelName    string
	ModelNumber  string
	SerialNumber string
	UDN          string
}

// parseDeviceDescription walks the UPnP description XML for the handful of
// elements the hub cares about. Only the first UDN counts; embedded
// sub-devices repeat the element.
func parseDeviceDescription(payload []byte) deviceDescription {
	decoder := xml.NewDecoder(strings.NewReader(string(payload)))
	var desc deviceDescription

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "friendlyName":
			if desc.FriendlyName == "" {
				desc.FriendlyName = elementText(decoder, &start)
			}
		case "modelName":
			if desc.ModelName == "" {
				desc.ModelName = elementText(decoder, &start)
			}
		case "modelNumber":
			if desc.ModelNumber == "" {
				desc.ModelNumber = elementText(decoder, &start)
			}
		case "serialNumber":
			if desc.SerialNumber == "" {
				desc.SerialNumber = elementText(decoder, &start)
			}
		case "UDN":
			if desc.UDN == "" {
				desc.UDN = strings.TrimPrefix(elementText(decoder, &start), "uuid:")
			}
		}
	}

	return desc
}

func elementText(decoder *xml.Decoder, start *xml.StartElement) string {
	var value string
	if err := decoder.DecodeElement(&value, start); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
