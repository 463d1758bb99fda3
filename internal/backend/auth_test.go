/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := signToken("k", "alice", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sub, err := verifyToken("k", tok, now)
	if err != nil || sub != "alice" {
		t.Fatalf("verify: sub=%q err=%v", sub, err)
	}
	if _, err := verifyToken("other", tok, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong secret: %v", err)
	}
	if _, err := verifyToken("k", tok, now.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired: %v", err)
	}
}

func TestTokenTampering(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, _ := signToken("k", "alice", now.Add(time.Hour))
	payload, sig, _ := strings.Cut(tok, ".")
	forged, _ := signToken("k", "mallory", now.Add(time.Hour))
	fp, _, _ := strings.Cut(forged, ".")
	cases := map[string]string{
		"no dot":        payload,
		"extra dot":     tok + ".x",
		"bad base64":    "!!!." + sig,
		"swapped claim": fp + "." + sig,
	}
	for name, in := range cases {
		if _, err := verifyToken("k", in, now); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
