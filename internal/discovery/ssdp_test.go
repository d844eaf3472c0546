package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchResponse(t *testing.T) {
	raw := strings.Join([]string{
		"HTTP/1.1 200 OK",
		"CACHE-CONTROL: max-age=180",
		"EXT:",
		"LOCATION: http://192.168.1.45:60006/upnp/desc/aios_device/aios_device.xml",
		"ST: urn:schemas-denon-com:device:ACT-Denon:1",
		"USN: uuid:ea6e8d44-2442-11e4-ba14-0005cdf512a1::urn:schemas-denon-com:device:ACT-Denon:1",
		"",
		"",
	}, "\r\n")

	resp := parseSearchResponse(raw)

	assert.Equal(t, "http://192.168.1.45:60006/upnp/desc/aios_device/aios_device.xml", resp.Location)
	assert.Equal(t, "uuid:ea6e8d44-2442-11e4-ba14-0005cdf512a1::urn:schemas-denon-com:device:ACT-Denon:1", resp.USN)
	assert.Equal(t, "max-age=180", resp.Headers["CACHE-CONTROL"])
}

func TestParseSearchResponse_NormalizesHeaderCase(t *testing.T) {
	raw := strings.Join([]string{
		"HTTP/1.1 200 OK",
		"location: http://192.168.1.45:60006/desc.xml",
		"usn: uuid:abc",
		"",
	}, "\r\n")

	resp := parseSearchResponse(raw)

	assert.Equal(t, "http://192.168.1.45:60006/desc.xml", resp.Location)
	assert.Equal(t, "uuid:abc", resp.USN)
}

func TestParseSearchResponse_PreservesColonsInValue(t *testing.T) {
	// USN values contain colons; only the first separates name from value.
	raw := "HTTP/1.1 200 OK\r\nUSN: uuid:abc::urn:x\r\n\r\n"

	resp := parseSearchResponse(raw)
	assert.Equal(t, "uuid:abc::urn:x", resp.USN)
}

func TestParseSearchResponse_Garbage(t *testing.T) {
	resp := parseSearchResponse("not an ssdp reply at all")
	assert.Empty(t, resp.Location)
	assert.Empty(t, resp.USN)
}

func TestSearchRequest(t *testing.T) {
	msg := string(searchRequest())

	assert.True(t, strings.HasPrefix(msg, "M-SEARCH * HTTP/1.1\r\n"))
	assert.Contains(t, msg, "HOST: 239.255.255.250:1900\r\n")
	assert.Contains(t, msg, "MAN: \"ssdp:discover\"\r\n")
	assert.Contains(t, msg, "ST: urn:schemas-denon-com:device:ACT-Denon:1\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n"), "request must end with a blank line")
}

func TestCollectResponses(t *testing.T) {
	byUSN := map[string]SearchResponse{
		"uuid:a": {USN: "uuid:a", Location: "http://192.168.1.45:60006/desc.xml"},
		"uuid:b": {USN: "uuid:b", Location: "http://192.168.1.46:60006/desc.xml"},
	}

	responses := collectResponses(byUSN)
	require.Len(t, responses, 2)

	usns := []string{responses[0].USN, responses[1].USN}
	assert.ElementsMatch(t, []string{"uuid:a", "uuid:b"}, usns)
}

func TestCollectResponses_Empty(t *testing.T) {
	responses := collectResponses(map[string]SearchResponse{})
	require.NotNil(t, responses)
	assert.Len(t, responses, 0)
}
