package routing

import (
	"errors"
	"testing"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		want    Topic
		wantErr bool
	}{
		{"device status", "home/living-room/light-1/status", Topic{RoomID: "living-room", DeviceID: "light-1", Kind: KindStatus}, false},
		{"device control", "home/kitchen/fan-2/control", Topic{RoomID: "kitchen", DeviceID: "fan-2", Kind: KindControl}, false},
		{"room broadcast", "home/kitchen/broadcast", Topic{RoomID: "kitchen", Kind: KindBroadcast}, false},
		{"room config", "home/hall/config", Topic{RoomID: "hall", Kind: KindConfig}, false},
		{"wrong prefix", "office/kitchen/fan-2/control", Topic{}, true},
		{"two segments", "home/kitchen", Topic{}, true},
		{"five segments", "home/kitchen/fan-2/control/extra", Topic{}, true},
		{"empty room", "home//fan-2/control", Topic{}, true},
		{"empty device", "home/kitchen//control", Topic{}, true},
		{"unknown room kind", "home/kitchen/telemetry", Topic{}, true},
		{"unknown device kind", "home/kitchen/fan-2/telemetry", Topic{}, true},
		{"broadcast with device id", "home/kitchen/fan-2/broadcast", Topic{}, true},
		{"empty topic", "", Topic{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTopic(tc.topic)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Fatalf("expected ErrInvalidTopic, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTopic: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
