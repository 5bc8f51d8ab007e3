package webhooks

import (
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the replay window applied when none is configured.
const DefaultTolerance = 5 * time.Minute

// ErrSignature is wrapped by every authentication failure returned by Verify.
var ErrSignature = errors.New("webhook signature verification failed")

var (
	ErrMissingSecret             = fmt.Errorf("%w: webhook secret not configured", ErrSignature)
	ErrInvalidHeader             = fmt.Errorf("%w: malformed signature header", ErrSignature)
	ErrTimestampOutsideTolerance = fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	ErrNoValidSignature          = fmt.Errorf("%w: no matching signature", ErrSignature)
)

type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// WithClock replaces the clock used for the tolerance check.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify authenticates rawBody against the signature header and parses it.
// Authentication failures wrap ErrSignature; a body that authenticates but
// cannot be parsed returns ErrMalformedPayload.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) (*Event, error) {
	if v.secret == "" {
		return nil, ErrMissingSecret
	}

	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}

	age := v.now().Sub(timestamp)
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return nil, ErrTimestampOutsideTolerance
	}

	expected, _ := hex.DecodeString(ComputeSignature(v.secret, timestamp, rawBody))
	valid := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrNoValidSignature
	}

	return ParseEvent(rawBody)
}

// parseSignatureHeader reads "t=<unix>,v1=<hex>[,v1=<hex>...]". Entries for
// other schemes are ignored.
func parseSignatureHeader(header string) (time.Time, [][]byte, error) {
	if header == "" {
		return time.Time{}, nil, ErrInvalidHeader
	}

	var timestamp time.Time
	var haveTimestamp bool
	var signatures [][]byte

	for _, pair := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, nil, ErrInvalidHeader
			}
			timestamp = time.Unix(unix, 0)
			haveTimestamp = true
		case signatureScheme:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTimestamp || len(signatures) == 0 {
		return time.Time{}, nil, ErrInvalidHeader
	}
	return timestamp, signatures, nil
}
