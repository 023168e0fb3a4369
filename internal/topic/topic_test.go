package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tasmota_mqtt/internal/models"
)

func TestFull(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		relay   models.Relay
		dir     Direction
		want    string
	}{
		{"default command", "", models.Relay{Topic: "plug1"}, Command, "plug1/cmnd/POWER"},
		{"default status with channel", models.DefaultTopicPattern, models.Relay{Topic: "plug1", RelayN: "2"}, Status, "plug1/stat/POWER2"},
		{"prefix first", "{prefix}/{topic}/", models.Relay{Topic: "sonoff"}, Command, "cmnd/sonoff/POWER"},
		{"nested namespace", "home/{topic}/{prefix}/", models.Relay{Topic: "printer", RelayN: "1"}, Status, "home/printer/stat/POWER1"},
		{"missing prefix placeholder kept literally", "{topic}/", models.Relay{Topic: "plug"}, Command, "plug/POWER"},
		{"unknown placeholder passes through", "{topic}/{dev}/{prefix}/", models.Relay{Topic: "plug"}, Command, "plug/{dev}/cmnd/POWER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Full(tc.pattern, tc.relay, tc.dir))
		})
	}
}
