package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Mask replaces every redacted value.
const Mask = "***"

// DefaultPIIPatterns match the payload keys that carry caller contact data.
var DefaultPIIPatterns = []string{`email$`, `address$`, `^owner_name$`, `^ani$`}

type piiSink struct {
	next     ports.PostCallSink
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a sink middleware that masks string values whose
// JSON key matches any pattern before the payload reaches next.
func NewPIIMiddleware(patternStrings []string) (SinkMiddleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.PostCallSink) ports.PostCallSink {
		return &piiSink{next: next, patterns: patterns}
	}, nil
}

func (m *piiSink) Write(ctx context.Context, p domain.PostCallPayload) error {
	masked, err := Redact(p, m.patterns)
	if err != nil {
		return err
	}
	return m.next.Write(ctx, masked)
}

// Redact returns a copy of p with matching string fields masked. p is not
// modified.
func Redact(p domain.PostCallPayload, patterns []*regexp.Regexp) (domain.PostCallPayload, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return domain.PostCallPayload{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return domain.PostCallPayload{}, fmt.Errorf("failed to decode payload: %w", err)
	}

	maskMap(fields, patterns)

	data, err = json.Marshal(fields)
	if err != nil {
		return domain.PostCallPayload{}, fmt.Errorf("failed to marshal redacted payload: %w", err)
	}
	var out domain.PostCallPayload
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.PostCallPayload{}, fmt.Errorf("failed to decode redacted payload: %w", err)
	}
	return out, nil
}

// maskMap only touches non-empty strings so typed fields still decode.
func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" {
			for _, p := range patterns {
				if p.MatchString(k) {
					m[k] = Mask
					break
				}
			}
			continue
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
