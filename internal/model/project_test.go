package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestProjectID_AcceptsNumbersAndStrings(t *testing.T) {
	var p struct {
		A ProjectID `json:"a"`
		B ProjectID `json:"b"`
		C ProjectID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":42,"b":"abc","c":null}`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.A != "42" || p.B != "abc" || p.C != "" {
		t.Errorf("unexpected ids %+v", p)
	}

	out, _ := json.Marshal(p.A)
	if string(out) != `"42"` {
		t.Errorf("expected ids to encode as strings, got %s", out)
	}

	if err := json.Unmarshal([]byte(`{"a":true}`), &p); err == nil {
		t.Error("expected error for boolean id")
	}
}

func TestTraits_ListOrText(t *testing.T) {
	cases := []struct {
		in   string
		want string
		n    int
	}{
		{`["brave","loyal"]`, "brave, loyal", 2},
		{`"quiet and watchful"`, "quiet and watchful", 1},
		{`""`, "", 0},
		{`null`, "", 0},
	}
	for _, tc := range cases {
		var tr Traits
		if err := json.Unmarshal([]byte(tc.in), &tr); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if tr.String() != tc.want || len(tr) != tc.n {
			t.Errorf("%s: got %q (%d)", tc.in, tr.String(), len(tr))
		}
	}
}

func TestTimestamp_Layouts(t *testing.T) {
	cases := []string{
		`"2024-05-01T10:00:00Z"`,
		`"2024-05-01T10:00:00.123456"`,
		`"2024-05-01 10:00:00"`,
		`"2024-05-01T12:00:00+02:00"`,
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, in := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if ts.Truncate(time.Second).Sub(want) != 0 {
			t.Errorf("%s: got %v", in, ts.Time)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("expected zero time for null, got %v (%v)", ts.Time, err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestProject_DecodesBackendPayload(t *testing.T) {
	payload := `{
		"id": 7,
		"title": "Heist",
		"budget_cap": 5000000,
		"industry": "Hollywood",
		"status": "completed",
		"raw_characters": {"characters": [{"name": "Lead", "traits": "cunning", "actors": [{"name": "A", "salary": 1}]}]},
		"optimization_result": [{"role": "Lead", "actor_name": "A", "salary": 1}],
		"created_at": "2024-05-01T10:00:00"
	}`

	var p Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.ID != "7" || !p.Status.IsTerminal() || len(p.Characters()) != 1 {
		t.Errorf("unexpected project %+v", p)
	}
	if p.Characters()[0].Traits.String() != "cunning" {
		t.Errorf("unexpected traits %v", p.Characters()[0].Traits)
	}

	var empty *Project
	if empty.Characters() != nil {
		t.Error("expected nil characters for nil project")
	}
}

func TestEnums(t *testing.T) {
	if !IndustryBollywood.IsValid() || Industry("Tollywood").IsValid() {
		t.Error("unexpected industry validity")
	}
	if ProjectStatusPending.IsTerminal() {
		t.Error("pending is not terminal")
	}
	for _, s := range []TrackState{TrackStateCompleted, TrackStateFailed, TrackStateError, TrackStateTimedOut} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if TrackStateLoading.IsTerminal() || TrackStatePending.IsTerminal() {
		t.Error("loading and pending are not terminal")
	}
}
