package imagehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/example/imagecheck/internal/logging"
)

// ErrForbiddenTarget is returned for URLs that are not public http(s) addresses.
var ErrForbiddenTarget = errors.New("image URL must be a public http or https address")

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// HTTPFetcher downloads images referenced by URL, bounded by MaxImageSize.
// Connections to loopback, private, link-local and other non-public
// addresses are refused at dial time, redirects included.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return newHTTPFetcher(timeout, false)
}

func newHTTPFetcher(timeout time.Duration, allowPrivate bool) *HTTPFetcher {
	dialer := &net.Dialer{Timeout: timeout}
	if !allowPrivate {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !isPublicIP(ip) {
				return ErrForbiddenTarget
			}
			return nil
		}
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: timeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout, Transport: transport}}
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		sharedAddressSpace.Contains(ip))
}

// Fetch returns the body of imageURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	requestID := logging.RequestIDFromContext(ctx)
	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, ErrForbiddenTarget
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, logging.NewOperationError("imagehost.fetch", requestID, err)
	}

	resp, err := f.client.Do(req)
	if errors.Is(err, ErrForbiddenTarget) {
		return nil, ErrForbiddenTarget
	}
	if err != nil {
		return nil, logging.NewOperationError("imagehost.fetch", requestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, logging.NewOperationError("imagehost.fetch", requestID, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, logging.NewOperationError("imagehost.fetch", requestID, err)
	}
	if len(data) > MaxImageSize {
		return nil, ErrFileTooBig
	}
	return data, nil
}
