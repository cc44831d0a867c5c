// Package cdn locates Path of Exile content on the patch CDN. It builds
// bundle URLs and asks the patch servers which content version is live.
package cdn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode/utf16"
)

const (
	PoE1CDNURL = "https://patch.poecdn.com"
	PoE2CDNURL = "https://patch-poe2.poecdn.com"

	PoE1PatchServer = "patch.pathofexile.com:12995"
	PoE2PatchServer = "patch.pathofexile2.com:13060"
)

// BaseURL returns the CDN host for a major game version (3 for PoE1, 4 for PoE2).
func BaseURL(gameVersion int) string {
	if gameVersion >= 4 {
		return PoE2CDNURL
	}
	return PoE1CDNURL
}

// PatchServer returns the patch server address for a game (1 or 2).
func PatchServer(game int) string {
	if game == 2 {
		return PoE2PatchServer
	}
	return PoE1PatchServer
}

// ConstructURL builds the URL of a file in a version's Bundles2 directory.
func ConstructURL(baseURL, version, filename string) string {
	return fmt.Sprintf("%s/%s/Bundles2/%s", strings.TrimRight(baseURL, "/"), version, filename)
}

// patchRequest asks the patch server for the current CDN location.
var patchRequest = []byte{1, 6}

const (
	patchURLLengthOffset = 34
	patchURLOffset       = 35
)

// QueryPatchServer asks the patch server at addr for the live content
// version and returns it along with the CDN URL it advertised.
func QueryPatchServer(ctx context.Context, addr string) (version string, cdnURL string, err error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", "", fmt.Errorf("connecting to patch server %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", "", fmt.Errorf("setting deadline: %w", err)
	}

	if _, err := conn.Write(patchRequest); err != nil {
		return "", "", fmt.Errorf("writing patch request: %w", err)
	}

	resp, err := readPatchResponse(conn)
	if err != nil {
		return "", "", err
	}

	cdnURL, err = ParsePatchResponse(resp)
	if err != nil {
		return "", "", err
	}

	version, err = VersionFromURL(cdnURL)
	if err != nil {
		return "", "", err
	}

	return version, cdnURL, nil
}

// readPatchResponse reads until the advertised URL is complete or the
// server closes the connection.
func readPatchResponse(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		if len(buf) > patchURLLengthOffset {
			if want := patchURLOffset + 2*int(buf[patchURLLengthOffset]); len(buf) >= want {
				return buf, nil
			}
		}

		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading patch response: %w", err)
		}
	}
}

// ParsePatchResponse extracts the UTF-16LE CDN URL from a patch server reply.
// The URL length, in code units, is stored in the byte before the URL.
func ParsePatchResponse(resp []byte) (string, error) {
	if len(resp) <= patchURLLengthOffset {
		return "", fmt.Errorf("patch response too short: %d bytes", len(resp))
	}

	n := int(resp[patchURLLengthOffset])
	end := patchURLOffset + 2*n
	if n == 0 || end > len(resp) {
		return "", fmt.Errorf("patch response truncated: want %d bytes, got %d", end, len(resp))
	}

	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(resp[patchURLOffset+2*i:])
	}

	return string(utf16.Decode(units)), nil
}

// VersionFromURL returns the last path segment of a CDN URL such as
// "https://patch.poecdn.com/3.25.3.4/".
func VersionFromURL(cdnURL string) (string, error) {
	u, err := url.Parse(cdnURL)
	if err != nil {
		return "", fmt.Errorf("parsing CDN URL %q: %w", cdnURL, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	version := segments[len(segments)-1]
	if version == "" {
		return "", fmt.Errorf("no version in CDN URL %q", cdnURL)
	}

	return version, nil
}
