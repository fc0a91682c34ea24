package botapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrAmbiguousDelivery marks a transport failure where the request
	// plausibly reached the server but the response was lost. The send
	// path must not retry after this: a retry could deliver the message
	// twice, and the protocol favors no duplicates over no loss.
	ErrAmbiguousDelivery = errors.New("botapi: response lost after request may have been delivered")

	// ErrMalformedResponse marks a well-formed HTTP exchange whose body
	// is missing a required field. Retryable.
	ErrMalformedResponse = errors.New("botapi: malformed response body")
)

// classifyDeliveryError decides whether a transport error on the send
// path is ambiguous. Failures that occur before the request can reach
// the server (refused connections, DNS resolution) are safe to retry;
// timeouts and connection drops after the request was written are not,
// because the server may already have processed the message.
func classifyDeliveryError(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return err
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %v", ErrAmbiguousDelivery, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAmbiguousDelivery, err)
	}
	return err
}
