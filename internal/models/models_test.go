package models

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLocationTimeLocation(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		want     string
		wantErr  bool
	}{
		{"iana zone", "America/Los_Angeles", "America/Los_Angeles", false},
		{"no zone is utc", "", "UTC", false},
		{"unknown zone", "America/Nowhere", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := Location{City: City{Name: "Portland", State: "Oregon"}, Timezone: tt.timezone}
			tz, err := loc.TimeLocation()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TimeLocation() = %v, want error", tz)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tz.String() != tt.want {
				t.Errorf("TimeLocation() = %s, want %s", tz, tt.want)
			}
		})
	}
}

func TestLocationTimeLocationKeepsLocalHours(t *testing.T) {
	loc := Location{Timezone: "America/Los_Angeles"}
	tz, err := loc.TimeLocation()
	if err != nil {
		t.Fatal(err)
	}
	// 2024-07-01 21:00 UTC is 14:00 PDT.
	local := time.Unix(1719867600, 0).In(tz)
	if local.Hour() != 14 {
		t.Errorf("hour = %d, want 14", local.Hour())
	}
}
