// Package schema provides tests for request envelope validation.
package schema

import (
	"testing"
)

// TestValidateWellFormed tests acceptance of a complete request envelope.
func TestValidateWellFormed(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	raw := []byte(`{
		"request_id": "r1",
		"request_type": "query_posts",
		"device_key": "11111111-1111-1111-1111-111111111111",
		"criteria": [{"field": "width", "op": "gte", "value": 64}],
		"sort": "random",
		"seed": 42,
		"limit": 10
	}`)
	if err := v.Validate(raw); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

// TestValidateUnknownRequestType tests that the schema does not constrain
// request_type membership: that failure belongs to the router so it maps
// to unknown_request_type, not invalid_request.
func TestValidateUnknownRequestType(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	raw := []byte(`{
		"request_id": "r1",
		"request_type": "launch_missiles",
		"device_key": "11111111-1111-1111-1111-111111111111"
	}`)
	if err := v.Validate(raw); err != nil {
		t.Errorf("Validate() error = %v, want nil for unknown request_type", err)
	}
}

// TestValidateRejections tests the structural failure cases.
func TestValidateRejections(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing request_id", `{"request_type": "get_post", "device_key": "11111111-1111-1111-1111-111111111111"}`},
		{"missing device_key", `{"request_id": "r1", "request_type": "get_post"}`},
		{"non-uuid device_key", `{"request_id": "r1", "request_type": "get_post", "device_key": "not-a-uuid"}`},
		{"empty request_id", `{"request_id": "", "request_type": "get_post", "device_key": "11111111-1111-1111-1111-111111111111"}`},
		{"numeric request_type", `{"request_id": "r1", "request_type": 7, "device_key": "11111111-1111-1111-1111-111111111111"}`},
		{"criteria not array", `{"request_id": "r1", "request_type": "query_posts", "device_key": "11111111-1111-1111-1111-111111111111", "criteria": "width>5"}`},
		{"criterion missing op", `{"request_id": "r1", "request_type": "query_posts", "device_key": "11111111-1111-1111-1111-111111111111", "criteria": [{"field": "width"}]}`},
		{"negative seed", `{"request_id": "r1", "request_type": "query_posts", "device_key": "11111111-1111-1111-1111-111111111111", "seed": -4}`},
	}

	for _, tc := range cases {
		if err := v.Validate([]byte(tc.raw)); err == nil {
			t.Errorf("%s: Validate() error = nil, want error", tc.name)
		}
	}
}
