// SPDX-License-Identifier: MIT

package fetcher

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	phraseConfidence  = 0.9
	smallBodyWeight   = 0.6
	blockStatusWeight = 0.3
)

// Verdict is the result of classifying a response body.
type Verdict struct {
	Blocked    bool
	Confidence float64
	Reason     string
}

// Classifier scores responses that look like block, challenge or empty pages.
type Classifier struct {
	MinBytes  int
	Phrases   []string
	Threshold float64
}

// Classify scores a response. A known phrase is strong evidence on its own;
// a small body is weak evidence that grows as the body shrinks, and a
// 403/429/503 status adds to it.
func (c Classifier) Classify(status int, body string) Verdict {
	var (
		conf    float64
		reasons []string
	)

	low := strings.ToLower(body)
	for _, p := range c.Phrases {
		if p != "" && strings.Contains(low, strings.ToLower(p)) {
			conf = phraseConfidence
			reasons = append(reasons, fmt.Sprintf("phrase %q", p))
			break
		}
	}

	if c.MinBytes > 0 && len(body) < c.MinBytes {
		small := smallBodyWeight * (1 - float64(len(body))/float64(c.MinBytes))
		if small > conf {
			conf = small
		}
		reasons = append(reasons, fmt.Sprintf("body %d bytes", len(body)))
	}

	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if conf > 0 {
			conf += blockStatusWeight
			reasons = append(reasons, fmt.Sprintf("status %d", status))
		}
	}
	if conf > 1 {
		conf = 1
	}

	threshold := c.Threshold
	if threshold <= 0 {
		threshold = 0.8
	}
	return Verdict{
		Blocked:    conf >= threshold,
		Confidence: conf,
		Reason:     strings.Join(reasons, ", "),
	}
}
